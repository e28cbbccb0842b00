package service

import (
	"context"
	"strings"
	"time"

	"commUnity/internal/pkg"

	"github.com/pkg/errors"
)

const (
	PurposeRegister   = "register"
	PurposeReset      = "reset"
	PurposeResetGrant = "reset-grant"

	DefaultCodeTTL = 5 * time.Minute

	grantValue = "granted"
)

var purposeSubjects = map[string]string{
	PurposeRegister: "email verification",
	PurposeReset:    "password reset",
}

// EmailService 验证码的生成、发送与校验
type EmailService struct {
	codes  CodeStore
	mailer pkg.Mailer
	ttl    time.Duration
}

func NewEmailService(codes CodeStore, mailer pkg.Mailer) *EmailService {
	return &EmailService{codes: codes, mailer: mailer, ttl: DefaultCodeTTL}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SendCode 生成验证码并发送，覆盖之前未使用的验证码
func (s *EmailService) SendCode(ctx context.Context, purpose, email string) error {
	subject, ok := purposeSubjects[purpose]
	if !ok {
		return pkg.NewValidationError("unknown code purpose")
	}
	email = NormalizeEmail(email)
	if email == "" {
		return pkg.NewValidationError("Email is required")
	}

	code, err := pkg.RandDigits(pkg.OTPLength)
	if err != nil {
		return errors.Wrap(err, "generate code")
	}
	if err = s.codes.Save(ctx, purpose, email, code, s.ttl); err != nil {
		return errors.Wrap(err, "save code")
	}
	if err = s.mailer.Send(ctx, email, "commUnity "+subject, pkg.EmailCodeHTML(subject, code, s.ttl)); err != nil {
		return errors.Wrap(err, "send code email")
	}
	return nil
}

// VerifyCode 校验成功即消费，同一验证码不能再次使用
func (s *EmailService) VerifyCode(ctx context.Context, purpose, email, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, nil
	}
	ok, err := s.codes.Consume(ctx, purpose, NormalizeEmail(email), code)
	if err != nil {
		return false, errors.Wrap(err, "consume code")
	}
	return ok, nil
}

// Grant 记录邮箱已通过该用途的验证，有效期同验证码，只能使用一次
func (s *EmailService) Grant(ctx context.Context, purpose, email string) error {
	return errors.Wrap(s.codes.Save(ctx, purpose, NormalizeEmail(email), grantValue, s.ttl), "save grant")
}

func (s *EmailService) ConsumeGrant(ctx context.Context, purpose, email string) (bool, error) {
	ok, err := s.codes.Consume(ctx, purpose, NormalizeEmail(email), grantValue)
	if err != nil {
		return false, errors.Wrap(err, "consume grant")
	}
	return ok, nil
}
