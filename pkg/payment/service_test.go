package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tuitionpay/app/models/payment"
	"tuitionpay/app/models/transaction"
	"tuitionpay/app/repositories"
	"tuitionpay/pkg/clients"
	"tuitionpay/pkg/logger"
	"tuitionpay/pkg/otp"
)

func TestMain(m *testing.M) {
	// 编排器在补偿路径上会写日志，测试里静默即可
	logger.Logger = zap.NewNop()
	m.Run()
}

/* ------------------ 下游服务的内存假实现 ------------------ */

// fakeLedger 记录余额操作次数，可注入失败
type fakeLedger struct {
	mu       sync.Mutex
	reserves int
	deducts  int
	releases int

	reserveErr error
	deductErr  error
	releaseErr error
}

func (f *fakeLedger) Reserve(ctx context.Context, userID uint64, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserveErr != nil {
		return f.reserveErr
	}
	f.reserves++
	return nil
}

func (f *fakeLedger) Deduct(ctx context.Context, userID uint64, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deductErr != nil {
		return f.deductErr
	}
	f.deducts++
	return nil
}

func (f *fakeLedger) Release(ctx context.Context, userID uint64, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseErr != nil {
		return f.releaseErr
	}
	f.releases++
	return nil
}

func (f *fakeLedger) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reserves, f.deducts, f.releases
}

// fakeBilling 账单服务的内存假实现
type fakeBilling struct {
	mu    sync.Mutex
	bills map[string]*clients.Bill

	getErr error
}

func (f *fakeBilling) Get(ctx context.Context, billCode string) (*clients.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	bill, ok := f.bills[billCode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", clients.ErrBillNotFound, billCode)
	}
	copied := *bill
	return &copied, nil
}

func (f *fakeBilling) GetByStudent(ctx context.Context, studentCode string) ([]clients.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []clients.Bill
	for _, bill := range f.bills {
		if bill.StudentCode == studentCode {
			result = append(result, *bill)
		}
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: %s", clients.ErrStudentNotFound, studentCode)
	}
	return result, nil
}

func (f *fakeBilling) SetStatus(ctx context.Context, billCode, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bill, ok := f.bills[billCode]
	if !ok {
		return fmt.Errorf("%w: %s", clients.ErrBillNotFound, billCode)
	}
	bill.Status = status
	return nil
}

func (f *fakeBilling) status(billCode string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bills[billCode].Status
}

// fakeNotifier 记录发出的邮件
type fakeNotifier struct {
	mu        sync.Mutex
	otpCodes  []string
	successes int
}

func (f *fakeNotifier) SendOtp(ctx context.Context, email, code string, ttlMinutes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.otpCodes = append(f.otpCodes, code)
	return nil
}

func (f *fakeNotifier) SendSuccess(ctx context.Context, email, name, billCode string, amount int64, semester string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes++
	return nil
}

func (f *fakeNotifier) lastOtp() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.otpCodes) == 0 {
		return ""
	}
	return f.otpCodes[len(f.otpCodes)-1]
}

// fakeUsers 用户服务的内存假实现
type fakeUsers struct {
	users map[uint64]*clients.User
}

func (f *fakeUsers) Get(ctx context.Context, userID uint64) (*clients.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return nil, clients.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUsers) GetByStudentCode(ctx context.Context, studentCode string) (*clients.User, error) {
	return nil, clients.ErrUserNotFound
}

/* ------------------ 测试环境 ------------------ */

const (
	testBillCode = "TF-2026-001"
	testUserID   = uint64(1)
	testAmount   = int64(5_000_000)
)

type testEnv struct {
	svc      *Service
	db       *gorm.DB
	store    *otp.MemoryStore
	ledger   *fakeLedger
	billing  *fakeBilling
	notifier *fakeNotifier
	now      *time.Time
}

// newTestEnv 组装内存数据库、可拨动时钟和全套假下游
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}
	// 内存库只有单连接可见，连接池必须收敛到 1
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层连接失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&payment.PaymentSession{}, &transaction.TransactionHistory{}); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	env := &testEnv{
		db:    db,
		store: otp.NewMemoryStore(),
		ledger: &fakeLedger{},
		billing: &fakeBilling{bills: map[string]*clients.Bill{
			testBillCode: {
				Code:        testBillCode,
				StudentCode: "SV001",
				Amount:      testAmount,
				Semester:    "2026-1",
				Status:      clients.BillStatusUnpaid,
			},
		}},
		notifier: &fakeNotifier{},
		now:      &now,
	}
	env.store.Now = func() time.Time { return *env.now }

	users := &fakeUsers{users: map[uint64]*clients.User{
		testUserID: {ID: testUserID, FullName: "Nguyen Van A", Email: "a@example.com"},
		2:          {ID: 2, FullName: "Tran Thi B", Email: "b@example.com"},
	}}

	env.svc = NewService(
		repositories.NewPaymentRepository(db),
		repositories.NewTransactionRepository(db),
		env.store,
		env.ledger,
		env.billing,
		env.notifier,
		users,
		Config{OtpTTL: time.Minute, MaxOtpAttempts: 3},
	)
	env.svc.now = func() time.Time { return *env.now }

	return env
}

// advance 拨动时钟
func (e *testEnv) advance(d time.Duration) {
	*e.now = e.now.Add(d)
}

// wrongCode 返回一个必然不等于已签发验证码的 6 位数字
func (e *testEnv) wrongCode() string {
	if e.notifier.lastOtp() == "000000" {
		return "000001"
	}
	return "000000"
}

// mustCreate 创建会话并断言成功
func (e *testEnv) mustCreate(t *testing.T, userID uint64) *payment.PaymentSession {
	t.Helper()
	session, err := e.svc.CreatePayment(context.Background(), userID, testBillCode, testAmount)
	if err != nil {
		t.Fatalf("CreatePayment 失败: %v", err)
	}
	return session
}

// sessionStatus 直接从数据库读取会话状态
func (e *testEnv) sessionStatus(t *testing.T, id uint64) string {
	t.Helper()
	var session payment.PaymentSession
	if err := e.db.First(&session, id).Error; err != nil {
		t.Fatalf("读取会话 %d 失败: %v", id, err)
	}
	return session.Status
}

// historyMessages 某用户的流水消息，按写入顺序
func (e *testEnv) historyMessages(t *testing.T, userID uint64) []string {
	t.Helper()
	var histories []transaction.TransactionHistory
	if err := e.db.Where("user_id = ?", userID).Order("id").Find(&histories).Error; err != nil {
		t.Fatalf("读取流水失败: %v", err)
	}
	messages := make([]string, 0, len(histories))
	for _, h := range histories {
		messages = append(messages, h.Message)
	}
	return messages
}

/* ------------------ 创建支付会话 ------------------ */

func TestCreatePayment(t *testing.T) {
	env := newTestEnv(t)
	session := env.mustCreate(t, testUserID)

	if session.Status != payment.StatusPendingOtp {
		t.Fatalf("新会话应处于 pending_otp，得到 %s", session.Status)
	}
	if session.OtpExpiresAt == nil || !session.OtpExpiresAt.Equal(env.now.Add(time.Minute)) {
		t.Fatalf("OTP 截止时间应为创建时间加 TTL，得到 %v", session.OtpExpiresAt)
	}

	reserves, deducts, releases := env.ledger.counts()
	if reserves != 1 || deducts != 0 || releases != 0 {
		t.Fatalf("创建只应冻结一次余额，reserve=%d deduct=%d release=%d", reserves, deducts, releases)
	}
	if env.notifier.lastOtp() == "" {
		t.Fatal("应向用户邮箱发送验证码")
	}

	messages := env.historyMessages(t, testUserID)
	if len(messages) != 1 || messages[0] != "payment session created, waiting for OTP verification" {
		t.Fatalf("应只有一条等待验证流水，得到 %v", messages)
	}
}

func TestCreatePaymentValidation(t *testing.T) {
	tests := []struct {
		name     string
		userID   uint64
		billCode string
		amount   int64
		wantErr  error
	}{
		{"账单不存在", testUserID, "TF-404", testAmount, ErrBillNotFound},
		{"金额低于账单", testUserID, testBillCode, testAmount - 1, ErrAmountMismatch},
		{"用户不存在", 404, testBillCode, testAmount, ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.svc.CreatePayment(context.Background(), tt.userID, tt.billCode, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("期望 %v，得到 %v", tt.wantErr, err)
			}

			// 校验失败发生在冻结之前，不应有任何余额操作
			reserves, _, releases := env.ledger.counts()
			if reserves != 0 || releases != 0 {
				t.Fatalf("校验失败不应触碰余额，reserve=%d release=%d", reserves, releases)
			}

			// 每条失败路径都留下恰好一条失败流水
			messages := env.historyMessages(t, tt.userID)
			if len(messages) != 1 || !strings.HasPrefix(messages[0], "payment failed: ") {
				t.Fatalf("应有一条失败流水，得到 %v", messages)
			}
		})
	}
}

func TestCreatePaymentBillAlreadyPaid(t *testing.T) {
	env := newTestEnv(t)
	env.billing.bills[testBillCode].Status = clients.BillStatusPaid

	_, err := env.svc.CreatePayment(context.Background(), testUserID, testBillCode, testAmount)
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("已缴清的账单应拒绝创建，得到 %v", err)
	}
}

func TestCreatePaymentInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.reserveErr = clients.ErrInsufficientFunds

	_, err := env.svc.CreatePayment(context.Background(), testUserID, testBillCode, testAmount)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("期望 ErrInsufficientFunds，得到 %v", err)
	}

	// 冻结未成功，不应出现解冻
	_, _, releases := env.ledger.counts()
	if releases != 0 {
		t.Fatalf("冻结失败不应解冻，release=%d", releases)
	}

	var count int64
	env.db.Model(&payment.PaymentSession{}).Where("status = ?", payment.StatusFailed).Count(&count)
	if count != 1 {
		t.Fatalf("应落一条失败快照，得到 %d 条", count)
	}
}

func TestCreatePaymentConflict(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, testUserID)

	// 同一用户重复创建
	_, err := env.svc.CreatePayment(context.Background(), testUserID, testBillCode, testAmount)
	if !errors.Is(err, ErrPaymentInProgress) {
		t.Fatalf("同一用户重复创建应冲突，得到 %v", err)
	}

	// 另一个用户对同一账单创建
	_, err = env.svc.CreatePayment(context.Background(), 2, testBillCode, testAmount)
	if !errors.Is(err, ErrPaymentInProgress) {
		t.Fatalf("另一用户并发创建应冲突，得到 %v", err)
	}

	// 冲突发生在冻结之前，原会话的冻结不受影响
	reserves, _, releases := env.ledger.counts()
	if reserves != 1 || releases != 0 {
		t.Fatalf("冲突不应触碰余额，reserve=%d release=%d", reserves, releases)
	}

	// 被拒绝的用户留下失败流水
	messages := env.historyMessages(t, 2)
	if len(messages) != 1 || !strings.HasPrefix(messages[0], "payment failed: ") {
		t.Fatalf("被拒绝的用户应有一条失败流水，得到 %v", messages)
	}
}

func TestCreatePaymentReplacesExpiredSession(t *testing.T) {
	env := newTestEnv(t)
	stale := env.mustCreate(t, testUserID)

	// 旧会话过期后，新会话可以取而代之
	env.advance(2 * time.Minute)

	fresh, err := env.svc.CreatePayment(context.Background(), 2, testBillCode, testAmount)
	if err != nil {
		t.Fatalf("过期会话应可被取代: %v", err)
	}

	// 旧会话被物理删除，它冻结的余额已被解冻
	var count int64
	env.db.Model(&payment.PaymentSession{}).Where("id = ?", stale.ID).Count(&count)
	if count != 0 {
		t.Fatal("被取代的过期会话应被删除")
	}
	reserves, _, releases := env.ledger.counts()
	if reserves != 2 || releases != 1 {
		t.Fatalf("取代过期会话应先解冻旧冻结，reserve=%d release=%d", reserves, releases)
	}
	if env.sessionStatus(t, fresh.ID) != payment.StatusPendingOtp {
		t.Fatal("新会话应处于 pending_otp")
	}
}

/* ------------------ OTP 验证 ------------------ */

func TestVerifyOtpSuccess(t *testing.T) {
	env := newTestEnv(t)
	session := env.mustCreate(t, testUserID)
	code := env.notifier.lastOtp()

	verified, err := env.svc.VerifyOtp(context.Background(), session.ID, code)
	if err != nil {
		t.Fatalf("VerifyOtp 失败: %v", err)
	}
	if verified.Status != payment.StatusSuccess {
		t.Fatalf("会话应成功，得到 %s", verified.Status)
	}
	if env.sessionStatus(t, session.ID) != payment.StatusSuccess {
		t.Fatal("成功状态应已落库")
	}

	// 扣款恰好一次，冻结额被消耗，没有解冻
	reserves, deducts, releases := env.ledger.counts()
	if reserves != 1 || deducts != 1 || releases != 0 {
		t.Fatalf("成功路径余额操作异常，reserve=%d deduct=%d release=%d", reserves, deducts, releases)
	}

	// 账单被标记已缴清，成功邮件已发出
	if env.billing.status(testBillCode) != clients.BillStatusPaid {
		t.Fatal("账单应被标记为已缴清")
	}
	if env.notifier.successes != 1 {
		t.Fatalf("应发送一封成功邮件，得到 %d", env.notifier.successes)
	}

	// 验证码一次性使用
	if _, ok, _ := env.store.Peek(context.Background(), "payment:otp:"+fmt.Sprint(session.ID)); ok {
		t.Fatal("成功后验证码应被删除")
	}

	messages := env.historyMessages(t, testUserID)
	want := []string{"payment session created, waiting for OTP verification", "payment successful"}
	if len(messages) != len(want) || messages[0] != want[0] || messages[1] != want[1] {
		t.Fatalf("流水应为 %v，得到 %v", want, messages)
	}

	// 终态不可重入
	if _, err := env.svc.VerifyOtp(context.Background(), session.ID, code); !errors.Is(err, ErrAlreadySuccess) {
		t.Fatalf("成功会话重复验证应拒绝，得到 %v", err)
	}
}

func TestVerifyOtpWrongCodeBounded(t *testing.T) {
	env := newTestEnv(t)
	session := env.mustCreate(t, testUserID)

	// 前两次输错只记流水，会话保持等待
	for i := 0; i < 2; i++ {
		_, err := env.svc.VerifyOtp(context.Background(), session.ID, env.wrongCode())
		if !errors.Is(err, ErrOtpInvalid) {
			t.Fatalf("第 %d 次输错应返回 ErrOtpInvalid，得到 %v", i+1, err)
		}
		if env.sessionStatus(t, session.ID) != payment.StatusPendingOtp {
			t.Fatalf("第 %d 次输错后会话应仍在等待", i+1)
		}
	}

	// 第三次达到上限，会话失败，冻结解除
	_, err := env.svc.VerifyOtp(context.Background(), session.ID, env.wrongCode())
	if !errors.Is(err, ErrOtpRejected) {
		t.Fatalf("达到上限应返回 ErrOtpRejected，得到 %v", err)
	}
	if env.sessionStatus(t, session.ID) != payment.StatusFailed {
		t.Fatal("达到上限后会话应失败")
	}
	reserves, deducts, releases := env.ledger.counts()
	if reserves != 1 || deducts != 0 || releases != 1 {
		t.Fatalf("拒绝路径应解冻余额，reserve=%d deduct=%d release=%d", reserves, deducts, releases)
	}

	messages := env.historyMessages(t, testUserID)
	want := []string{
		"payment session created, waiting for OTP verification",
		"invalid otp",
		"invalid otp",
		"max attempts exceeded",
	}
	if len(messages) != len(want) {
		t.Fatalf("流水应为 %v，得到 %v", want, messages)
	}
	for i := range want {
		if messages[i] != want[i] {
			t.Fatalf("流水第 %d 条应为 %q，得到 %q", i, want[i], messages[i])
		}
	}

	// 正确的验证码此时也救不回来
	if _, err := env.svc.VerifyOtp(context.Background(), session.ID, env.notifier.lastOtp()); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("已终结的会话应拒绝验证，得到 %v", err)
	}
}

func TestVerifyOtpExpired(t *testing.T) {
	env := newTestEnv(t)
	session := env.mustCreate(t, testUserID)
	code := env.notifier.lastOtp()

	env.advance(time.Minute + time.Second)

	_, err := env.svc.VerifyOtp(context.Background(), session.ID, code)
	if !errors.Is(err, ErrOtpExpired) {
		t.Fatalf("过期验证应返回 ErrOtpExpired，得到 %v", err)
	}
	if env.sessionStatus(t, session.ID) != payment.StatusFailed {
		t.Fatal("过期验证后会话应失败")
	}
	_, _, releases := env.ledger.counts()
	if releases != 1 {
		t.Fatalf("过期路径应解冻余额，release=%d", releases)
	}

	messages := env.historyMessages(t, testUserID)
	if messages[len(messages)-1] != "otp expired" {
		t.Fatalf("最后一条流水应为 otp expired，得到 %v", messages)
	}
}

func TestVerifyOtpBillPaidByAnotherSession(t *testing.T) {
	env := newTestEnv(t)
	session := env.mustCreate(t, testUserID)
	code := env.notifier.lastOtp()

	// 另一条会话抢先缴清了账单
	env.billing.bills[testBillCode].Status = clients.BillStatusPaid

	_, err := env.svc.VerifyOtp(context.Background(), session.ID, code)
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("账单已被缴清应返回 ErrAlreadyPaid，得到 %v", err)
	}
	if env.sessionStatus(t, session.ID) != payment.StatusFailed {
		t.Fatal("会话应转入失败")
	}
	_, deducts, releases := env.ledger.counts()
	if deducts != 0 || releases != 1 {
		t.Fatalf("不应扣款且应解冻，deduct=%d release=%d", deducts, releases)
	}

	messages := env.historyMessages(t, testUserID)
	if messages[len(messages)-1] != "paid by another session" {
		t.Fatalf("最后一条流水应为 paid by another session，得到 %v", messages)
	}
}

func TestVerifyOtpDeductFailure(t *testing.T) {
	env := newTestEnv(t)
	session := env.mustCreate(t, testUserID)
	code := env.notifier.lastOtp()

	env.ledger.deductErr = errors.New("boom")

	_, err := env.svc.VerifyOtp(context.Background(), session.ID, code)
	if !errors.Is(err, ErrPaymentProcessing) {
		t.Fatalf("扣款故障应返回 ErrPaymentProcessing，得到 %v", err)
	}
	if env.sessionStatus(t, session.ID) != payment.StatusFailed {
		t.Fatal("扣款失败后会话应失败")
	}

	// 扣款未发生，冻结额必须退回
	_, _, releases := env.ledger.counts()
	if releases != 1 {
		t.Fatalf("扣款失败应解冻，release=%d", releases)
	}

	messages := env.historyMessages(t, testUserID)
	if messages[len(messages)-1] != "deduct failed: boom" {
		t.Fatalf("最后一条流水应记录扣款失败原因，得到 %v", messages)
	}
}

func TestVerifyOtpBillingOutage(t *testing.T) {
	env := newTestEnv(t)
	session := env.mustCreate(t, testUserID)
	code := env.notifier.lastOtp()

	// 账单服务暂时不可用：不动会话，重试可以成功
	env.billing.getErr = errors.New("connection refused")
	if _, err := env.svc.VerifyOtp(context.Background(), session.ID, code); !errors.Is(err, ErrPaymentProcessing) {
		t.Fatalf("账单服务故障应返回 ErrPaymentProcessing，得到 %v", err)
	}
	if env.sessionStatus(t, session.ID) != payment.StatusPendingOtp {
		t.Fatal("下游故障不应改变会话状态")
	}

	env.billing.getErr = nil
	if _, err := env.svc.VerifyOtp(context.Background(), session.ID, code); err != nil {
		t.Fatalf("故障恢复后重试应成功: %v", err)
	}
}

func TestVerifyOtpNotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.VerifyOtp(context.Background(), 999, "123456"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("不存在的会话应返回 ErrPaymentNotFound，得到 %v", err)
	}
}

/* ------------------ 取消 ------------------ */

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	session := env.mustCreate(t, testUserID)

	cancelled, err := env.svc.Cancel(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Cancel 失败: %v", err)
	}
	if cancelled.Status != payment.StatusCancelled {
		t.Fatalf("会话应已取消，得到 %s", cancelled.Status)
	}
	_, _, releases := env.ledger.counts()
	if releases != 1 {
		t.Fatalf("取消应解冻余额，release=%d", releases)
	}

	messages := env.historyMessages(t, testUserID)
	if messages[len(messages)-1] != "cancelled by user" {
		t.Fatalf("最后一条流水应为 cancelled by user，得到 %v", messages)
	}

	// 取消是终态
	if _, err := env.svc.Cancel(context.Background(), session.ID); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("重复取消应拒绝，得到 %v", err)
	}
	if _, err := env.svc.VerifyOtp(context.Background(), session.ID, env.notifier.lastOtp()); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("已取消的会话应拒绝验证，得到 %v", err)
	}
}

/* ------------------ 过期清扫 ------------------ */

func TestSweepExpired(t *testing.T) {
	env := newTestEnv(t)
	session := env.mustCreate(t, testUserID)

	// 未过期时清扫是空操作
	swept, err := env.svc.SweepExpired(context.Background())
	if err != nil || swept != 0 {
		t.Fatalf("未过期不应清扫，swept=%d err=%v", swept, err)
	}

	env.advance(time.Minute + time.Second)

	swept, err = env.svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("SweepExpired 失败: %v", err)
	}
	if swept != 1 {
		t.Fatalf("应清扫一个会话，得到 %d", swept)
	}
	if env.sessionStatus(t, session.ID) != payment.StatusFailed {
		t.Fatal("被清扫的会话应失败")
	}
	_, _, releases := env.ledger.counts()
	if releases != 1 {
		t.Fatalf("清扫应解冻余额，release=%d", releases)
	}

	messages := env.historyMessages(t, testUserID)
	if messages[len(messages)-1] != "otp expired automatically" {
		t.Fatalf("最后一条流水应为 otp expired automatically，得到 %v", messages)
	}

	// 幂等：重复清扫不重复补偿
	swept, err = env.svc.SweepExpired(context.Background())
	if err != nil || swept != 0 {
		t.Fatalf("重复清扫应为空操作，swept=%d err=%v", swept, err)
	}
	_, _, releases = env.ledger.counts()
	if releases != 1 {
		t.Fatalf("重复清扫不应重复解冻，release=%d", releases)
	}
}

func TestSweepExpiredMultiple(t *testing.T) {
	env := newTestEnv(t)

	// 两张账单各有一个等待验证的会话
	env.billing.bills["TF-2026-002"] = &clients.Bill{
		Code:        "TF-2026-002",
		StudentCode: "SV002",
		Amount:      testAmount,
		Semester:    "2026-1",
		Status:      clients.BillStatusUnpaid,
	}
	first := env.mustCreate(t, testUserID)
	second, err := env.svc.CreatePayment(context.Background(), 2, "TF-2026-002", testAmount)
	if err != nil {
		t.Fatalf("CreatePayment 失败: %v", err)
	}

	env.advance(2 * time.Minute)

	swept, err := env.svc.SweepExpired(context.Background())
	if err != nil || swept != 2 {
		t.Fatalf("应清扫两个会话，swept=%d err=%v", swept, err)
	}
	if env.sessionStatus(t, first.ID) != payment.StatusFailed ||
		env.sessionStatus(t, second.ID) != payment.StatusFailed {
		t.Fatal("两个会话都应失败")
	}
	_, _, releases := env.ledger.counts()
	if releases != 2 {
		t.Fatalf("两笔冻结都应解冻，release=%d", releases)
	}
}

/* ------------------ 交易流水查询 ------------------ */

func TestGetHistory(t *testing.T) {
	env := newTestEnv(t)
	session := env.mustCreate(t, testUserID)
	if _, err := env.svc.VerifyOtp(context.Background(), session.ID, env.notifier.lastOtp()); err != nil {
		t.Fatalf("VerifyOtp 失败: %v", err)
	}

	items, err := env.svc.GetHistory(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("GetHistory 失败: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("应有两条流水，得到 %d", len(items))
	}

	// 倒序：最新的在前
	if items[0].Message != "payment successful" {
		t.Fatalf("最新流水应为成功记录，得到 %q", items[0].Message)
	}

	// 每条流水补充了账单信息
	for _, item := range items {
		if item.BillAmount != testAmount || item.Semester != "2026-1" {
			t.Fatalf("流水应补充账单金额与学期，得到 %+v", item)
		}
	}

	// 其他用户看不到这些流水
	others, err := env.svc.GetHistory(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetHistory 失败: %v", err)
	}
	if len(others) != 0 {
		t.Fatalf("其他用户不应有流水，得到 %d 条", len(others))
	}
}

func TestGetHistoryBillingOutage(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, testUserID)

	// 账单服务不可用时流水主数据照常返回，只是没有补充信息
	env.billing.getErr = errors.New("connection refused")

	items, err := env.svc.GetHistory(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("GetHistory 失败: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("应有一条流水，得到 %d", len(items))
	}
	if items[0].BillAmount != 0 || items[0].Semester != "" {
		t.Fatalf("账单服务不可用时不应有补充信息，得到 %+v", items[0])
	}
}
