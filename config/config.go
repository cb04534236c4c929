package config

// Initialize 触发本包所有 init() 完成配置注册
// main 包通过导入本包加载全部配置项
func Initialize() {
}
