package service

import (
	"context"
	"mime/multipart"
	"strings"

	"commUnity/internal/model"
	"commUnity/internal/pkg"
	"commUnity/internal/repository/mysql"
	"commUnity/internal/repository/redis"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type UserService struct {
	repo     *mysql.UserRepository
	members  *mysql.CommunityMemberRepository
	sessions *redis.UserRepository
	tokens   *pkg.TokenIssuer
	emailSvc *EmailService
	assets   pkg.AssetStore
	evictor  RoomEvictor
}

type RegisterInput struct {
	Username   string
	Email      string
	Password   string
	Location   string
	ProfilePic *multipart.FileHeader
}

func NewUserService(db *gorm.DB, sessions *redis.UserRepository, tokens *pkg.TokenIssuer, emailSvc *EmailService, assets pkg.AssetStore) *UserService {
	return &UserService{
		repo:     &mysql.UserRepository{DB: db},
		members:  &mysql.CommunityMemberRepository{DB: db},
		sessions: sessions,
		tokens:   tokens,
		emailSvc: emailSvc,
		assets:   assets,
		evictor:  noopEvictor{},
	}
}

func (s *UserService) SetEvictor(e RoomEvictor) {
	s.evictor = e
}

// Register 注册；邮箱已存在返回 Conflict，不会写入第二条记录
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = NormalizeEmail(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, pkg.NewValidationError("username, email and password are required")
	}

	exists, err := s.repo.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, errors.Wrap(err, "check email")
	}
	if exists {
		return nil, pkg.NewConflictError("Email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	user := &model.User{
		Username: in.Username,
		Password: string(hash),
		Email:    in.Email,
		Location: strings.TrimSpace(in.Location),
		MemberOf: []uint64{},
	}
	if in.ProfilePic != nil {
		if user.ProfilePic, err = s.assets.Save(ctx, in.ProfilePic); err != nil {
			return nil, err
		}
	}

	if err = s.repo.Create(ctx, user); err != nil {
		if user.ProfilePic != "" {
			discardAsset(ctx, s.assets, user.ProfilePic)
		}
		// 并发注册同一邮箱时由唯一索引兜底
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, pkg.NewConflictError("Email already exists")
		}
		return nil, errors.Wrap(err, "create user")
	}
	return user, nil
}

func (s *UserService) CheckEmail(ctx context.Context, email string) (bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return false, pkg.NewValidationError("Email is required")
	}
	exists, err := s.repo.ExistsByEmail(ctx, email)
	return exists, errors.Wrap(err, "check email")
}

// Login 登录成功后把 access token 写入 redis，旧会话随之失效
func (s *UserService) Login(ctx context.Context, email, password string) (*model.User, *pkg.Pair, error) {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, nil, storeErr(err, "user")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, nil, pkg.NewUnauthorizedError("Invalid credentials")
	}

	pair, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (s *UserService) startSession(ctx context.Context, userID uint64) (*pkg.Pair, error) {
	pair, err := s.tokens.GeneratePair(userID)
	if err != nil {
		return nil, errors.Wrap(err, "generate token")
	}
	if err = s.sessions.AddUserToken(ctx, userID, pair.AccessToken); err != nil {
		return nil, errors.Wrap(err, "store session")
	}
	return pair, nil
}

func (s *UserService) Logout(ctx context.Context, userID uint64) error {
	return errors.Wrap(s.sessions.DeleteUserToken(ctx, userID), "delete session")
}

// Refresh 用 refresh token 换新的一对 token，并替换当前会话
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*pkg.Pair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, pkg.NewUnauthorizedError("invalid or expired refresh token")
	}
	if _, err = s.repo.FindByID(ctx, claims.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkg.NewUnauthorizedError("invalid or expired refresh token")
		}
		return nil, errors.Wrap(err, "load user")
	}
	return s.startSession(ctx, claims.UserID)
}

// Authenticate 解析 access token，且必须是该用户当前的会话
func (s *UserService) Authenticate(ctx context.Context, token string) (uint64, error) {
	claims, err := s.tokens.ParseAccess(token)
	if err != nil {
		return 0, pkg.NewUnauthorizedError("invalid or expired token")
	}

	// redis校验是否是正确的token
	current, err := s.sessions.GetUserToken(ctx, claims.UserID)
	if errors.Is(err, redis.ErrTokenNotFound) {
		return 0, pkg.NewUnauthorizedError("session expired, please login again")
	}
	if err != nil {
		return 0, errors.Wrap(err, "load session")
	}
	if current != token {
		return 0, pkg.NewUnauthorizedError("Account has been logged in elsewhere")
	}

	// 校验通过后更新过期时间
	if err = s.sessions.ExtendUserToken(ctx, claims.UserID); err != nil {
		return 0, errors.Wrap(err, "extend session")
	}
	return claims.UserID, nil
}

// RequestReset 向已注册邮箱发送重置验证码
func (s *UserService) RequestReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return pkg.NewValidationError("Email is required")
	}
	if _, err := s.repo.FindByEmail(ctx, email); err != nil {
		return storeErr(err, "user")
	}
	return s.emailSvc.SendCode(ctx, PurposeReset, email)
}

// VerifyReset 校验重置验证码，成功后发放一次性的重置许可
func (s *UserService) VerifyReset(ctx context.Context, email, code string) error {
	ok, err := s.emailSvc.VerifyCode(ctx, PurposeReset, email, code)
	if err != nil {
		return err
	}
	if !ok {
		return pkg.NewValidationError("Invalid OTP")
	}
	return s.emailSvc.Grant(ctx, PurposeResetGrant, email)
}

// ResetPassword 需要先通过 VerifyReset；成功后许可失效并踢掉当前会话
func (s *UserService) ResetPassword(ctx context.Context, email, newPassword string) error {
	if newPassword == "" {
		return pkg.NewValidationError("Password cannot be empty")
	}
	email = NormalizeEmail(email)
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return storeErr(err, "user")
	}

	ok, err := s.emailSvc.ConsumeGrant(ctx, PurposeResetGrant, email)
	if err != nil {
		return err
	}
	if !ok {
		return pkg.NewUnauthorizedError("verify the reset code first")
	}
	return s.setPassword(ctx, user.ID, newPassword)
}

func (s *UserService) setPassword(ctx context.Context, userID uint64, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	if err = s.repo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return storeErr(err, "user")
	}
	return s.Logout(ctx, userID)
}

// Profile 返回用户信息及其加入的社区 id
func (s *UserService) Profile(ctx context.Context, userID uint64) (*model.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	if user.MemberOf, err = s.members.CommunityIDs(ctx, userID); err != nil {
		return nil, errors.Wrap(err, "load memberships")
	}
	return user, nil
}

func (s *UserService) UpdateUsername(ctx context.Context, userID uint64, username string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, pkg.NewValidationError("Username cannot be empty")
	}
	if err := s.repo.UpdateUsername(ctx, userID, username); err != nil {
		return nil, storeErr(err, "user")
	}
	return s.Profile(ctx, userID)
}

// UpdatePassword 登录态修改密码，成功后需要重新登录
func (s *UserService) UpdatePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	if newPassword == "" {
		return pkg.NewValidationError("Password cannot be empty")
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return storeErr(err, "user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)) != nil {
		return pkg.NewUnauthorizedError("Old password didn't match")
	}
	return s.setPassword(ctx, userID, newPassword)
}

func (s *UserService) ChangeProfile(ctx context.Context, userID uint64, fh *multipart.FileHeader) (string, error) {
	if fh == nil {
		return "", pkg.NewValidationError("no picture received")
	}
	url, err := s.assets.Save(ctx, fh)
	if err != nil {
		return "", err
	}
	if err = s.repo.UpdateProfilePic(ctx, userID, url); err != nil {
		discardAsset(ctx, s.assets, url)
		return "", storeErr(err, "user")
	}
	return url, nil
}

// DeleteUser 需要输入当前用户名确认；所有权交接与清理在同一事务内完成
func (s *UserService) DeleteUser(ctx context.Context, userID uint64, typedName string) ([]mysql.OwnerChange, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	if strings.TrimSpace(typedName) != user.Username {
		return nil, pkg.NewValidationError("Name doesn't match")
	}

	changes, err := s.repo.DeleteCascade(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	s.evictor.EvictUser(userID)
	if err = s.Logout(ctx, userID); err != nil {
		pkg.Logger.WarnContext(ctx, "session cleanup failed after user deletion", "user_id", userID, "error", err)
	}
	return changes, nil
}
