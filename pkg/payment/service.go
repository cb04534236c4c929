// Package payment 支付编排器：驱动"冻结余额 → 验证 OTP → 扣款或解冻"
// 这一整条 saga，并维护只追加的交易流水
//
// 状态机：pending_otp -> {success, failed}；cancelled 仅来自显式取消。
// 终态永不再变。每条可达的失败路径都恰好留下一个终态会话和一条流水。
// 余额冻结与扣款/解冻之间不构成整体原子：中断留下的冻结在 OTP 过期
// 后由 SweepExpired 兜底释放，不一致窗口以 OTP 有效期为界。
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tuitionpay/app/models/payment"
	"tuitionpay/app/models/transaction"
	"tuitionpay/app/repositories"
	"tuitionpay/pkg/clients"
	"tuitionpay/pkg/logger"
	"tuitionpay/pkg/otp"
)

// 默认配置
const (
	// DefaultOtpTTL OTP 有效期
	DefaultOtpTTL = time.Minute
	// DefaultMaxOtpAttempts 允许的验证码错误次数
	DefaultMaxOtpAttempts = 3
)

// otpKeyPrefix 支付验证码在 OTP 存储中的键前缀
const otpKeyPrefix = "payment:otp:"

// Config 编排器配置，显式传入而不是进程级常量
type Config struct {
	OtpTTL         time.Duration
	MaxOtpAttempts int64
}

// Service 支付编排器
// 无内部共享可变状态，可被并发的请求协程和清扫协程同时调用；
// 跨请求的竞态边界见 CreatePayment 的冲突检查说明
type Service struct {
	payments  *repositories.PaymentRepository
	histories *repositories.TransactionRepository
	otp       otp.Store
	ledger    clients.Ledger
	billing   clients.Billing
	notifier  clients.Notifier
	users     clients.Users
	cfg       Config

	// now 可注入时钟，测试里用来驱动过期
	now func() time.Time
}

// NewService 创建支付编排器
func NewService(
	payments *repositories.PaymentRepository,
	histories *repositories.TransactionRepository,
	otpStore otp.Store,
	ledger clients.Ledger,
	billing clients.Billing,
	notifier clients.Notifier,
	users clients.Users,
	cfg Config,
) *Service {
	if cfg.OtpTTL <= 0 {
		cfg.OtpTTL = DefaultOtpTTL
	}
	if cfg.MaxOtpAttempts <= 0 {
		cfg.MaxOtpAttempts = DefaultMaxOtpAttempts
	}

	return &Service{
		payments:  payments,
		histories: histories,
		otp:       otpStore,
		ledger:    ledger,
		billing:   billing,
		notifier:  notifier,
		users:     users,
		cfg:       cfg,
		now:       time.Now,
	}
}

// otpKey 支付会话对应的验证码键
func otpKey(paymentID uint64) string {
	return fmt.Sprintf("%s%d", otpKeyPrefix, paymentID)
}

// CreatePayment 创建支付会话
//
// 校验账单和用户、冻结余额、落库会话、签发验证码、发送邮件、记流水。
// 余额冻结成功之后的任何失败都会触发补偿：尽力解冻、落一条失败快照、
// 追加失败流水，然后把原始错误原样抛给调用方
func (s *Service) CreatePayment(ctx context.Context, userID uint64, billCode string, amount int64) (*payment.PaymentSession, error) {
	// 1. 账单必须存在且未缴清
	bill, err := s.billing.Get(ctx, billCode)
	if err != nil {
		if errors.Is(err, clients.ErrBillNotFound) {
			return nil, s.failCreate(ctx, nil, userID, billCode, amount, false, ErrBillNotFound)
		}
		return nil, s.failCreate(ctx, nil, userID, billCode, amount, false, fmt.Errorf("%w: %v", ErrPaymentProcessing, err))
	}
	if bill.Status == clients.BillStatusPaid {
		return nil, s.failCreate(ctx, nil, userID, billCode, amount, false, ErrAlreadyPaid)
	}

	// 2. 同一张账单同一时刻只允许一个等待验证的会话
	//
	// 先查再写，没有事务隔离：两个并发创建之间存在竞态窗口，
	// 属于有记录的已知限制（本服务不保证同账单并发创建的严格可串行化）
	if existing, err := s.payments.FindPendingByBillCode(ctx, billCode); err != nil {
		return nil, s.failCreate(ctx, nil, userID, billCode, amount, false, fmt.Errorf("%w: %v", ErrPaymentProcessing, err))
	} else if existing != nil {
		if existing.IsExpired(s.now()) {
			// 过期未验证的旧会话：清扫还没来得及处理，它冻结的余额仍被占用，
			// 删除取代之前先尽力解冻，避免冻结额泄漏
			s.releaseQuietly(ctx, existing)
			if err := s.otp.Delete(ctx, otpKey(existing.ID)); err != nil {
				logger.ErrorString("支付", "删除验证码", err.Error())
			}
			if err := s.payments.Delete(ctx, existing); err != nil {
				return nil, s.failCreate(ctx, nil, userID, billCode, amount, false, fmt.Errorf("%w: %v", ErrPaymentProcessing, err))
			}
		} else if existing.UserID == userID {
			return nil, s.failCreate(ctx, nil, userID, billCode, amount, false,
				fmt.Errorf("%w：你已有一个等待验证的会话，请先完成或等待其过期", ErrPaymentInProgress))
		} else {
			return nil, s.failCreate(ctx, nil, userID, billCode, amount, false,
				fmt.Errorf("%w：该账单正在被其他用户缴费，请稍后再试", ErrPaymentInProgress))
		}
	}

	// 3. 缴费金额必须覆盖账单金额
	if amount < bill.Amount {
		return nil, s.failCreate(ctx, nil, userID, billCode, amount, false, ErrAmountMismatch)
	}

	// 4. 付款人必须存在且有邮箱可收验证码
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, clients.ErrUserNotFound) {
			return nil, s.failCreate(ctx, nil, userID, billCode, amount, false, ErrUserNotFound)
		}
		return nil, s.failCreate(ctx, nil, userID, billCode, amount, false, fmt.Errorf("%w: %v", ErrPaymentProcessing, err))
	}
	if user.Email == "" {
		return nil, s.failCreate(ctx, nil, userID, billCode, amount, false, ErrEmailMissing)
	}

	// 5. 冻结余额，此后所有失败路径都必须补偿
	if err := s.ledger.Reserve(ctx, userID, amount); err != nil {
		if errors.Is(err, clients.ErrInsufficientFunds) {
			return nil, s.failCreate(ctx, nil, userID, billCode, amount, false, ErrInsufficientFunds)
		}
		return nil, s.failCreate(ctx, nil, userID, billCode, amount, false, fmt.Errorf("%w: %v", ErrPaymentProcessing, err))
	}

	// 6. 落库支付会话
	expiresAt := s.now().Add(s.cfg.OtpTTL)
	session := &payment.PaymentSession{
		UserID:       userID,
		BillCode:     billCode,
		Amount:       amount,
		Status:       payment.StatusPendingOtp,
		OtpExpiresAt: &expiresAt,
	}
	if err := s.payments.Create(ctx, session); err != nil {
		return nil, s.failCreate(ctx, nil, userID, billCode, amount, true, fmt.Errorf("%w: %v", ErrPaymentProcessing, err))
	}

	// 7. 签发验证码并发送邮件（邮件尽力而为）
	code, err := s.otp.Issue(ctx, otpKey(session.ID), s.cfg.OtpTTL)
	if err != nil {
		return nil, s.failCreate(ctx, session, userID, billCode, amount, true, fmt.Errorf("%w: %v", ErrPaymentProcessing, err))
	}
	if err := s.notifier.SendOtp(ctx, user.Email, code, int(s.cfg.OtpTTL.Minutes())); err != nil {
		logger.ErrorString("支付", "发送验证码邮件", err.Error())
	}

	// 8. 记 pending 流水
	if err := s.appendHistory(ctx, session, transaction.OutcomePending, "payment session created, waiting for OTP verification"); err != nil {
		return nil, s.failCreate(ctx, session, userID, billCode, amount, true, fmt.Errorf("%w: %v", ErrPaymentProcessing, err))
	}

	return session, nil
}

// VerifyOtp 验证 OTP 并终结支付会话
//
// 验证码正确则扣款、标记成功、通知、更新账单状态；
// 错误次数达到上限、验证码过期、或账单已被他人缴清时会话转入失败终态。
// 单纯的验证码输错不改变会话状态，允许在次数上限内继续尝试
func (s *Service) VerifyOtp(ctx context.Context, paymentID uint64, code string) (*payment.PaymentSession, error) {
	session, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentProcessing, err)
	}
	if session == nil {
		return nil, ErrPaymentNotFound
	}
	if session.Status == payment.StatusSuccess {
		return nil, ErrAlreadySuccess
	}
	if session.IsTerminal() {
		// 已失败或已取消的会话早已完成补偿，不再触碰
		return nil, ErrAlreadyResolved
	}

	key := otpKey(session.ID)

	// 重新核对账单状态，处理并发会话抢先缴清的情况
	bill, err := s.billing.Get(ctx, session.BillCode)
	if err != nil {
		// 账单服务暂时不可用：不动会话，留给重试或清扫兜底
		return nil, fmt.Errorf("%w: %v", ErrPaymentProcessing, err)
	}
	if bill.Status == clients.BillStatusPaid {
		s.resolveFailed(ctx, session, "paid by another session")
		return nil, ErrAlreadyPaid
	}

	// 核对验证码
	stored, ok, err := s.otp.Peek(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentProcessing, err)
	}
	if !ok {
		s.resolveFailed(ctx, session, "otp expired")
		return nil, ErrOtpExpired
	}

	if stored != code {
		count, err := s.otp.IncrementAttempts(ctx, key, s.cfg.OtpTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentProcessing, err)
		}
		if count >= s.cfg.MaxOtpAttempts {
			s.resolveFailed(ctx, session, "max attempts exceeded")
			return nil, ErrOtpRejected
		}
		// 未到上限：只记流水，会话保持等待状态，允许继续尝试
		if err := s.appendHistory(ctx, session, transaction.OutcomeFailed, "invalid otp"); err != nil {
			logger.ErrorString("支付", "追加流水", err.Error())
		}
		return nil, ErrOtpInvalid
	}

	// 验证通过，扣除此前冻结的余额
	if err := s.ledger.Deduct(ctx, session.UserID, session.Amount); err != nil {
		s.resolveFailed(ctx, session, "deduct failed: "+err.Error())
		if errors.Is(err, clients.ErrInsufficientFunds) {
			return nil, ErrInsufficientFunds
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentProcessing, err)
	}

	// 扣款已经发生，终结步骤必须执行完，调用方断开也不中止
	done := context.WithoutCancel(ctx)

	session.Status = payment.StatusSuccess
	if err := s.payments.Save(done, session); err != nil {
		// 资金已扣除，冻结额已被消耗，此处不能再解冻；
		// 会话留在等待状态，由清扫标记失败并留下日志线索
		logger.ErrorString("支付", "保存成功状态", err.Error())
		return nil, fmt.Errorf("%w: %v", ErrPaymentProcessing, err)
	}

	if err := s.otp.Delete(done, key); err != nil {
		logger.ErrorString("支付", "删除验证码", err.Error())
	}
	if err := s.appendHistory(done, session, transaction.OutcomeSuccess, "payment successful"); err != nil {
		logger.ErrorString("支付", "追加流水", err.Error())
	}

	// 成功邮件与账单状态更新都是尽力而为，失败只记日志
	s.notifySuccess(done, session, bill.Semester)
	if err := s.billing.SetStatus(done, session.BillCode, clients.BillStatusPaid); err != nil {
		logger.ErrorString("支付", "更新账单状态", err.Error())
	}

	return session, nil
}

// Cancel 显式取消一个等待验证的支付会话
// cancelled 是终态，只能从外部的取消请求进入
func (s *Service) Cancel(ctx context.Context, paymentID uint64) (*payment.PaymentSession, error) {
	session, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentProcessing, err)
	}
	if session == nil {
		return nil, ErrPaymentNotFound
	}
	if session.Status == payment.StatusSuccess {
		return nil, ErrAlreadySuccess
	}
	if session.IsTerminal() {
		return nil, ErrAlreadyResolved
	}

	done := context.WithoutCancel(ctx)

	s.releaseQuietly(done, session)

	session.Status = payment.StatusCancelled
	if err := s.payments.Save(done, session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentProcessing, err)
	}
	if err := s.appendHistory(done, session, transaction.OutcomeFailed, "cancelled by user"); err != nil {
		logger.ErrorString("支付", "追加流水", err.Error())
	}
	if err := s.otp.Delete(done, otpKey(session.ID)); err != nil {
		logger.ErrorString("支付", "删除验证码", err.Error())
	}

	return session, nil
}

// HistoryItem 交易流水及其账单补充信息
type HistoryItem struct {
	transaction.TransactionHistory
	BillAmount int64  `json:"bill_amount,omitempty"`
	Semester   string `json:"semester,omitempty"`
}

// GetHistory 查询某个用户的交易流水
// 每条流水尽力补充账单金额和学期信息，账单服务不可用时不影响主数据
func (s *Service) GetHistory(ctx context.Context, userID uint64) ([]HistoryItem, error) {
	histories, err := s.histories.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentProcessing, err)
	}

	items := make([]HistoryItem, 0, len(histories))
	// 同一批流水里往往是同一张账单，查过的就不再查
	bills := make(map[string]*clients.Bill)
	for _, h := range histories {
		item := HistoryItem{TransactionHistory: h}
		if h.BillCode != "" {
			bill, cached := bills[h.BillCode]
			if !cached {
				if fetched, err := s.billing.Get(ctx, h.BillCode); err == nil {
					bill = fetched
				}
				bills[h.BillCode] = bill
			}
			if bill != nil {
				item.BillAmount = bill.Amount
				item.Semester = bill.Semester
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// SweepExpired 清扫所有越过 OTP 截止时间仍在等待验证的会话
//
// 对每个过期会话：尽力解冻余额、标记失败、追加流水、删除验证码。
// 各会话独立处理，单个会话的失败只记日志，不中止整轮清扫。
// 操作幂等：状态过滤天然排除了已终结的会话，重复执行是空操作
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	sessions, err := s.payments.FindExpiredPending(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("查询过期会话失败: %w", err)
	}

	swept := 0
	for i := range sessions {
		session := &sessions[i]

		s.releaseQuietly(ctx, session)

		session.Status = payment.StatusFailed
		if err := s.payments.Save(ctx, session); err != nil {
			logger.ErrorString("清扫", "标记失败状态", fmt.Sprintf("会话 %d: %v", session.ID, err))
			continue
		}
		if err := s.appendHistory(ctx, session, transaction.OutcomeFailed, "otp expired automatically"); err != nil {
			logger.ErrorString("清扫", "追加流水", fmt.Sprintf("会话 %d: %v", session.ID, err))
		}
		if err := s.otp.Delete(ctx, otpKey(session.ID)); err != nil {
			logger.ErrorString("清扫", "删除验证码", fmt.Sprintf("会话 %d: %v", session.ID, err))
		}
		swept++
	}
	return swept, nil
}

// failCreate 创建路径的统一补偿
//
// reserved 为 true 时尽力解冻余额；session 已落库则迁移到失败终态，
// 否则补一条失败快照；随后追加失败流水。补偿自身的失败只记日志，
// 绝不掩盖原始错误。最终原样返回 cause
func (s *Service) failCreate(ctx context.Context, session *payment.PaymentSession, userID uint64, billCode string, amount int64, reserved bool, cause error) error {
	// 补偿必须执行完，调用方断开也不中止
	done := context.WithoutCancel(ctx)

	if reserved {
		if err := s.ledger.Release(done, userID, amount); err != nil {
			logger.ErrorString("支付", "解冻余额", err.Error())
		}
	}

	if session != nil {
		session.Status = payment.StatusFailed
		if err := s.payments.Save(done, session); err != nil {
			logger.ErrorString("支付", "保存失败快照", err.Error())
		}
	} else {
		session = &payment.PaymentSession{
			UserID:   userID,
			BillCode: billCode,
			Amount:   amount,
			Status:   payment.StatusFailed,
		}
		if err := s.payments.Create(done, session); err != nil {
			logger.ErrorString("支付", "保存失败快照", err.Error())
			session = nil
		}
	}

	history := &transaction.TransactionHistory{
		UserID:   userID,
		BillCode: billCode,
		Amount:   amount,
		Outcome:  transaction.OutcomeFailed,
		Message:  "payment failed: " + cause.Error(),
	}
	if session != nil {
		id := session.ID
		history.PaymentID = &id
	}
	if err := s.histories.Append(done, history); err != nil {
		logger.ErrorString("支付", "追加流水", err.Error())
	}

	return cause
}

// resolveFailed 验证路径上把会话迁入失败终态的统一出口
// 解冻余额、保存状态、追加流水、删除验证码，各步尽力而为
func (s *Service) resolveFailed(ctx context.Context, session *payment.PaymentSession, message string) {
	done := context.WithoutCancel(ctx)

	s.releaseQuietly(done, session)

	session.Status = payment.StatusFailed
	if err := s.payments.Save(done, session); err != nil {
		logger.ErrorString("支付", "保存失败状态", err.Error())
	}
	if err := s.appendHistory(done, session, transaction.OutcomeFailed, message); err != nil {
		logger.ErrorString("支付", "追加流水", err.Error())
	}
	if err := s.otp.Delete(done, otpKey(session.ID)); err != nil {
		logger.ErrorString("支付", "删除验证码", err.Error())
	}
}

// releaseQuietly 尽力解冻余额，失败只记日志
func (s *Service) releaseQuietly(ctx context.Context, session *payment.PaymentSession) {
	if err := s.ledger.Release(ctx, session.UserID, session.Amount); err != nil {
		logger.ErrorString("支付", "解冻余额", fmt.Sprintf("会话 %d: %v", session.ID, err))
	}
}

// appendHistory 为某次状态迁移追加一条流水
func (s *Service) appendHistory(ctx context.Context, session *payment.PaymentSession, outcome, message string) error {
	id := session.ID
	return s.histories.Append(ctx, &transaction.TransactionHistory{
		PaymentID: &id,
		UserID:    session.UserID,
		BillCode:  session.BillCode,
		Amount:    session.Amount,
		Outcome:   outcome,
		Message:   message,
	})
}

// notifySuccess 发送缴费成功邮件，完全尽力而为
func (s *Service) notifySuccess(ctx context.Context, session *payment.PaymentSession, semester string) {
	user, err := s.users.Get(ctx, session.UserID)
	if err != nil {
		logger.ErrorString("支付", "查询用户邮箱", err.Error())
		return
	}
	if err := s.notifier.SendSuccess(ctx, user.Email, user.FullName, session.BillCode, session.Amount, semester); err != nil {
		logger.ErrorString("支付", "发送成功邮件", err.Error())
	}
}
