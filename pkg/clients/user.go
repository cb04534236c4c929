package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Users 用户信息服务契约
type Users interface {
	// Get 按用户 ID 查询，不存在时返回 ErrUserNotFound
	Get(ctx context.Context, userID uint64) (*User, error)
	// GetByStudentCode 按学号查询，学费查询流程使用
	GetByStudentCode(ctx context.Context, studentCode string) (*User, error)
}

// UserClient 基于 HTTP 的用户信息客户端
type UserClient struct {
	client *resty.Client
}

// NewUserClient 创建用户信息客户端
func NewUserClient(baseURL string, timeout time.Duration) *UserClient {
	return &UserClient{
		client: newRestyClient(baseURL, timeout),
	}
}

// Get 按用户 ID 查询
func (c *UserClient) Get(ctx context.Context, userID uint64) (*User, error) {
	return c.get(ctx, fmt.Sprintf("/api/users/%d", userID))
}

// GetByStudentCode 按学号查询
func (c *UserClient) GetByStudentCode(ctx context.Context, studentCode string) (*User, error) {
	return c.get(ctx, "/api/users/student/"+studentCode)
}

// get 查询用户并映射下游错误
func (c *UserClient) get(ctx context.Context, path string) (*User, error) {
	var user User
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&user).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("用户服务请求失败: %w", err)
	}

	if resp.IsError() {
		apiErr := parseAPIError(resp)
		if resp.StatusCode() == 404 || apiErr.Code == "USER_NOT_FOUND" {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("用户服务错误 [%s]: %s", apiErr.Code, apiErr.Message)
	}
	return &user, nil
}
