package service

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"

	"commUnity/internal/model"
	"commUnity/internal/pkg"
	"commUnity/internal/repository/redis"
	"commUnity/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentMail struct {
	to, subject, body string
}

// recordingMailer 记录发出的邮件
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

var codePattern = regexp.MustCompile(`>(\d{6})<`)

func (m *recordingMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	match := codePattern.FindStringSubmatch(m.sent[len(m.sent)-1].body)
	require.Len(t, match, 2)
	return match[1]
}

// recordingEvictor 记录实时房间的清理调用
type recordingEvictor struct {
	calls []string
}

func (e *recordingEvictor) Evict(communityID, userID uint64) {
	e.calls = append(e.calls, fmt.Sprintf("evict %d %d", communityID, userID))
}

func (e *recordingEvictor) CloseRoom(communityID uint64) {
	e.calls = append(e.calls, fmt.Sprintf("close %d", communityID))
}

func (e *recordingEvictor) EvictUser(userID uint64) {
	e.calls = append(e.calls, fmt.Sprintf("user %d", userID))
}

// fileHeader 构造一个真实的 multipart 文件头
func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(pkg.MaxUploadSize))
	return req.MultipartForm.File["image"][0]
}

type fixture struct {
	db          *gorm.DB
	uploads     string
	evictor     *recordingEvictor
	mailer      *recordingMailer
	sessions    *redis.UserRepository
	users       *UserService
	communities *CommunityService
	events      *EventService
	comments    *CommentService
	notices     *NoticeService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	_, rdb := testutil.NewRedis(t)
	uploads := t.TempDir()
	assets, err := pkg.NewLocalAssetStore(uploads, "http://localhost:5000")
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		uploads:  uploads,
		evictor:  &recordingEvictor{},
		mailer:   &recordingMailer{},
		sessions: &redis.UserRepository{RDB: rdb},
	}
	emailSvc := NewEmailService(NewMemoryCodeStore(nil), f.mailer)
	f.users = NewUserService(db, f.sessions, pkg.NewTokenIssuer("access", "refresh"), emailSvc, assets)
	f.communities = NewCommunityService(db, assets)
	f.events = NewEventService(db, f.communities, assets)
	f.comments = NewCommentService(db, f.events)
	f.notices = NewNoticeService(db, f.communities)
	f.users.SetEvictor(f.evictor)
	f.communities.SetEvictor(f.evictor)
	return f
}

func (f *fixture) register(t *testing.T, name, email string) *model.User {
	t.Helper()
	u, err := f.users.Register(context.Background(), RegisterInput{Username: name, Email: email, Password: "secret"})
	require.NoError(t, err)
	return u
}

func (f *fixture) community(t *testing.T, ownerID uint64, name string) *model.Community {
	t.Helper()
	c, err := f.communities.CreateCommunity(context.Background(), ownerID, CommunityInput{Name: name, Location: "Pune"}, nil)
	require.NoError(t, err)
	return c
}

func (f *fixture) join(t *testing.T, userID, communityID uint64) {
	t.Helper()
	_, err := f.communities.JoinCommunity(context.Background(), userID, communityID)
	require.NoError(t, err)
}

func requireKind(t *testing.T, err error, kind pkg.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, pkg.IsKind(err, kind), "want %s, got %v", kind, err)
}
