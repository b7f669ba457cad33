package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/cloudhire/internal/auth"
	"github.com/pavelanni/cloudhire/internal/events"
	appI18n "github.com/pavelanni/cloudhire/internal/i18n"
	"github.com/pavelanni/cloudhire/internal/model"
	"github.com/pavelanni/cloudhire/internal/pipeline"
	"github.com/pavelanni/cloudhire/internal/scoring"
	"github.com/pavelanni/cloudhire/internal/storage"
	"github.com/pavelanni/cloudhire/internal/store"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.SubmissionEvent
}

func (p *fakePublisher) PublishSubmitted(_ context.Context, ev events.SubmissionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type testEnv struct {
	t      *testing.T
	store  *store.Store
	issuer *auth.Issuer
	files  *storage.LocalStore
	pub    *fakePublisher
	srv    *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	issuer, err := auth.NewIssuer("test-secret-0123456789", s, "http://hire.test", "", time.Hour)
	require.NoError(t, err)
	files, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	agg, err := scoring.New(scoring.DefaultConfig())
	require.NoError(t, err)

	env := &testEnv{t: t, store: s, issuer: issuer, files: files, pub: &fakePublisher{}}
	h, err := New(s, model.ExamConfig{TimeLimit: 30 * time.Minute}, Deps{
		Issuer:    issuer,
		Files:     files,
		Events:    env.pub,
		Processor: pipeline.New(s, agg, pipeline.Options{Files: files}),
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en", false))
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	env.srv = httptest.NewServer(r)
	t.Cleanup(env.srv.Close)
	return env
}

// client is a browser: it keeps cookies and does not follow redirects.
type client struct {
	env  *testEnv
	http *http.Client
}

func (e *testEnv) client() *client {
	jar, err := cookiejar.New(nil)
	require.NoError(e.t, err)
	c := &client{env: e, http: &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
	c.get("/login")
	return c
}

func (c *client) csrf() string {
	u, _ := url.Parse(c.env.srv.URL)
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == csrfCookieName {
			return ck.Value
		}
	}
	return ""
}

func (c *client) do(req *http.Request) (*http.Response, string) {
	c.env.t.Helper()
	resp, err := c.http.Do(req)
	require.NoError(c.env.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(c.env.t, err)
	return resp, string(body)
}

func (c *client) get(path string) (*http.Response, string) {
	c.env.t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.env.srv.URL+path, nil)
	require.NoError(c.env.t, err)
	return c.do(req)
}

func (c *client) post(path, contentType string, body io.Reader, header map[string]string) (*http.Response, string) {
	c.env.t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.env.srv.URL+path, body)
	require.NoError(c.env.t, err)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-CSRF-Token", c.csrf())
	for k, v := range header {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *client) postForm(path string, form url.Values) (*http.Response, string) {
	c.env.t.Helper()
	return c.post(path, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), nil)
}

type upload struct {
	field, name, content string
}

func (c *client) postMultipart(path string, form url.Values, files ...upload) (*http.Response, string) {
	c.env.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, vs := range form {
		for _, v := range vs {
			require.NoError(c.env.t, mw.WriteField(k, v))
		}
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(c.env.t, err)
		_, err = fw.Write([]byte(f.content))
		require.NoError(c.env.t, err)
	}
	require.NoError(c.env.t, mw.Close())
	return c.post(path, mw.FormDataContentType(), &buf, nil)
}

func (e *testEnv) admin() *client {
	e.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(e.t, err)
	_, err = e.store.CreateUser(model.User{
		Username:     "admin",
		Email:        "hiring@example.com",
		DisplayName:  "Admin",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	require.NoError(e.t, err)

	c := e.client()
	resp, _ := c.postForm("/login", url.Values{"username": {"admin"}, "password": {"s3cret"}})
	require.Equal(e.t, http.StatusSeeOther, resp.StatusCode)
	return c
}

func (e *testEnv) candidate(email string) *client {
	e.t.Helper()
	token, _, err := e.issuer.Issue(email)
	require.NoError(e.t, err)
	c := e.client()
	resp, _ := c.get("/auth/magic?token=" + url.QueryEscape(token))
	require.Equal(e.t, http.StatusSeeOther, resp.StatusCode)
	return c
}

var bio = url.Values{
	"first_name": {"Ada"},
	"last_name":  {"Lovelace"},
	"email":      {"ada@example.com"},
	"position":   {"Structures Engineer"},
}

// submitted creates a candidate with a submitted exam directly in the store.
func (e *testEnv) submitted(email string) int64 {
	e.t.Helper()
	u, err := e.store.EnsureCandidate(email)
	require.NoError(e.t, err)
	cid, err := e.store.SaveCandidate(model.Candidate{
		UserID: u.ID, FirstName: "Grace", LastName: "Hopper", Email: email, Position: "Analyst",
	})
	require.NoError(e.t, err)
	sub, err := e.store.StartSubmission(cid)
	require.NoError(e.t, err)
	require.NoError(e.t, e.store.SaveAnswers(sub.ID, scoring.MustParseAnswerSet(
		`{"multipleChoice":{"mc1":"B","mc2":"A"},"concepts":{"c1":"Shear flow is ..."}}`)))
	_, err = e.store.MarkSubmitted(sub.ID, sub.StartedAt.Add(20*time.Minute))
	require.NoError(e.t, err)
	return sub.ID
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.client().get("/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rep healthReport
	require.NoError(t, json.Unmarshal([]byte(body), &rep))
	assert.Equal(t, "ok", rep.Status)
	assert.Equal(t, "ok", rep.Checks["database"])
	assert.False(t, rep.Mail)
	assert.False(t, rep.LLM)
}

func TestAdminLogin(t *testing.T) {
	env := newTestEnv(t)
	c := env.admin()

	resp, _ := c.get("/")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin", resp.Header.Get("Location"))

	resp, body := c.get("/admin")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Invite a candidate")

	other := env.client()
	resp, _ = other.postForm("/login", url.Values{"username": {"admin"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCSRFRequired(t *testing.T) {
	env := newTestEnv(t)
	c := env.client()
	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/login",
		strings.NewReader(url.Values{"username": {"admin"}}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, _ := c.do(req)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = c.post("/login", "application/x-www-form-urlencoded", strings.NewReader("username=x"),
		map[string]string{"X-CSRF-Token": "forged"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.client().get("/exam")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestMagicLink(t *testing.T) {
	env := newTestEnv(t)
	token, _, err := env.issuer.Issue("ada@example.com")
	require.NoError(t, err)

	c := env.client()
	resp, _ := c.get("/auth/magic?token=" + url.QueryEscape(token))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = c.get("/")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/bio", resp.Header.Get("Location"))

	resp, body := env.client().get("/auth/magic?token=" + url.QueryEscape(token))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "already been used")

	resp, _ = env.client().get("/auth/magic?token=garbage")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = c.get("/admin")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSaveBio(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate("ada@example.com")

	resp, _ := c.postMultipart("/bio", bio, upload{"resume", "cv.txt", "Ten years of stress analysis."})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/exam", resp.Header.Get("Location"))

	u, err := env.store.GetUserByEmail("ada@example.com")
	require.NoError(t, err)
	cand, err := env.store.GetCandidateByUser(u.ID)
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "Lovelace", cand.LastName)

	files, err := env.store.ListFiles(cand.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, model.FileResume, files[0].Kind)
	assert.Equal(t, "resumes", files[0].Bucket)
	assert.Equal(t, storage.MIMEText, files[0].ContentType)

	data, err := env.files.Get(context.Background(), files[0].Bucket, files[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "Ten years of stress analysis.", string(data))
}

func TestSaveBioRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	c := env.candidate("ada@example.com")

	form := url.Values{"first_name": {"Ada"}, "email": {"not-an-email"}, "position": {"Engineer"}}
	resp, body := c.postForm("/bio", form)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Last name")

	resp, body = c.postMultipart("/bio", bio, upload{"resume", "cv.exe", "MZ"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "cv.exe")
}

func startExam(t *testing.T, env *testEnv) (*client, *model.Submission) {
	t.Helper()
	c := env.candidate("ada@example.com")
	resp, _ := c.postForm("/bio", bio)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp, _ = c.get("/exam")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	u, err := env.store.GetUserByEmail("ada@example.com")
	require.NoError(t, err)
	cand, err := env.store.GetCandidateByUser(u.ID)
	require.NoError(t, err)
	sub, err := env.store.LatestSubmission(cand.ID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return c, sub
}

func TestAutosave(t *testing.T) {
	env := newTestEnv(t)
	c, sub := startExam(t, env)

	form := url.Values{
		"mc:mc1":            {"Carbon Fiber"},
		"concept:c1":        {"Buckling is a stability failure."},
		"calc:calc1-answer": {"1250"},
		"behavioral:b1":     {"I listened first."},
		"unrelated":         {"ignored"},
	}
	resp, body := c.post("/exam/answers", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()), map[string]string{"HX-Request": "true"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, "Saved")

	got, err := env.store.GetSubmission(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "Carbon Fiber", got.Answers.MultipleChoice["mc1"])
	assert.Equal(t, "1250", got.Answers.Calculations[model.CalcKey{QuestionID: "calc1", Field: model.CalcAnswer}])
	assert.Equal(t, "I listened first.", got.Answers.Behavioral["b1"])

	resp, _ = c.post("/exam/answers", "application/json",
		strings.NewReader(`{"multipleChoice":{"mc2":"A"},"concepts":{}}`), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	got, err = env.store.GetSubmission(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"mc2": "A"}, got.Answers.MultipleChoice)
	assert.Empty(t, got.Answers.Concepts)
	assert.Equal(t, "I listened first.", got.Answers.Behavioral["b1"], "behavioral answers survive a JSON save")

	resp, _ = c.post("/exam/answers", "application/json", strings.NewReader(`{"concepts":["x"]}`), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmit(t *testing.T) {
	env := newTestEnv(t)
	c, sub := startExam(t, env)

	resp, _ := c.postForm("/exam/submit", url.Values{"behavioral:b1": {"Calmly."}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/done", resp.Header.Get("Location"))

	got, err := env.store.GetSubmission(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, got.Status)
	assert.NotNil(t, got.SubmittedAt)
	assert.Equal(t, "Calmly.", got.Answers.Behavioral["b1"])

	require.Len(t, env.pub.events, 1)
	assert.Equal(t, sub.ID, env.pub.events[0].SubmissionID)
	assert.Equal(t, sub.PublicID, env.pub.events[0].PublicID)

	resp, body := c.get("/done")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Thank you!")

	resp, _ = c.get("/exam")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/done", resp.Header.Get("Location"))

	resp, _ = c.postForm("/exam/answers", url.Values{"mc:mc1": {"A"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	got, err = env.store.GetSubmission(sub.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Answers.MultipleChoice["mc1"], "closed submissions are read-only")
}

func TestInvite(t *testing.T) {
	env := newTestEnv(t)
	c := env.admin()

	resp, body := c.postForm("/admin/invites", url.Values{"email": {" New.Candidate@Example.com "}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "new.candidate@example.com")
	assert.Contains(t, body, "http://hire.test/auth/magic?token=")

	u, err := env.store.GetUserByEmail("new.candidate@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, model.UserRoleCandidate, u.Role)

	resp, body = c.postForm("/admin/invites", url.Values{"email": {"nope"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Enter a valid email address.")

	resp, _ = c.postForm("/admin/invites", url.Values{"email": {"hiring@example.com"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "admins cannot be invited as candidates")
}

func TestSubmissionPageAndRegenerate(t *testing.T) {
	env := newTestEnv(t)
	c := env.admin()
	id := env.submitted("grace@example.com")

	resp, body := c.get(fmt.Sprintf("/admin/submissions/%d", id))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Grace Hopper")
	assert.Contains(t, body, "Unable to generate report at this time.")

	resp, body = c.postForm(fmt.Sprintf("/admin/submissions/%d/report", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "The report was regenerated.")
	assert.Contains(t, body, "srcdoc=")

	got, err := env.store.GetSubmission(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReported, got.Status)

	resp, body = c.postForm(fmt.Sprintf("/admin/submissions/%d/report", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "The report was regenerated.", "reported submissions can be regenerated")

	require.NoError(t, env.store.SetSubmissionStatus(id, model.StatusProcessing))
	resp, body = c.postForm(fmt.Sprintf("/admin/submissions/%d/report", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Generating report")

	resp, _ = c.get("/admin/submissions/9999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = c.get("/admin")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "grace@example.com")
}

func TestUploadQuestions(t *testing.T) {
	env := newTestEnv(t)
	c := env.admin()
	bank := "- section: multiple_choice\n  text: Pick one\n  options: [A, B]\n  correct_answer: B\n" +
		"- section: concept\n  text: Describe shear flow\n  points: 10\n"

	resp, body := c.postMultipart("/admin/questions", nil, upload{"questions_file", "bank.yaml", bank})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Imported 2 questions.")

	n, err := env.store.QuestionCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, body = c.postMultipart("/admin/questions", nil, upload{"questions_file", "bank.yaml", bank})
	assert.Contains(t, body, "This file has already been imported.")

	resp, body = c.postMultipart("/admin/questions", nil, upload{"questions_file", "bad.yaml", "- section: essay\n  text: x\n"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "could not be imported")
}

func TestUsers(t *testing.T) {
	env := newTestEnv(t)
	c := env.admin()

	resp, _ := c.postForm("/admin/users", url.Values{
		"username": {"lead"}, "password": {"pw"}, "email": {"lead@example.com"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	lead, err := env.store.GetUserByUsername("lead")
	require.NoError(t, err)
	require.NotNil(t, lead)
	assert.Equal(t, model.UserRoleAdmin, lead.Role)
	assert.Equal(t, "lead", lead.DisplayName)

	resp, _ = c.postForm(fmt.Sprintf("/admin/users/%d/toggle", lead.ID), nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	lead, err = env.store.GetUserByID(lead.ID)
	require.NoError(t, err)
	assert.False(t, lead.Active)

	self, err := env.store.GetUserByUsername("admin")
	require.NoError(t, err)
	resp, _ = c.postForm(fmt.Sprintf("/admin/users/%d/toggle", self.ID), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := c.get("/admin/users")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "lead@example.com")
}

func TestServeFile(t *testing.T) {
	env := newTestEnv(t)
	cand := env.candidate("ada@example.com")
	resp, _ := cand.postMultipart("/bio", bio, upload{"transcript", "grades.txt", "A+"})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	u, err := env.store.GetUserByEmail("ada@example.com")
	require.NoError(t, err)
	cd, err := env.store.GetCandidateByUser(u.ID)
	require.NoError(t, err)
	files, err := env.store.ListFiles(cd.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)

	resp, _ = cand.get(fmt.Sprintf("/files/%d", files[0].ID))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin := env.admin()
	resp, body := admin.get(fmt.Sprintf("/files/%d", files[0].ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "A+", body)
	assert.Equal(t, storage.MIMEText, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "grades.txt")

	resp, _ = admin.get("/files/424242")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
