// Package bulktest provides an in-process Bulk API 2.0 emulator for tests.
package bulktest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BasePath is where the emulator mounts the jobs API.
const BasePath = "/services/data/v64.0/jobs"

// RecordedRequest is one request seen by the emulator.
type RecordedRequest struct {
	Method      string
	Path        string // relative to BasePath, e.g. "query/750..."
	ContentType string
	Body        []byte
}

// FailFunc decides whether an uploaded record fails and with which message.
type FailFunc func(record map[string]string) (string, bool)

// Server emulates the job endpoints. Jobs progress through the scripted
// states, one state per status poll.
type Server struct {
	*httptest.Server

	// Token is the bearer token every request must carry.
	Token string

	mu          sync.Mutex
	jobs        map[string]*job
	requests    []RecordedRequest
	queryStates []string
	queryCSV    string
	ingestFlow  []string
	failFunc    FailFunc
}

type job struct {
	id        string
	kind      string
	operation string
	object    string
	extID     string
	query     string
	state     string
	created   time.Time
	script    []string
	errMsg    string
	header    []string
	rows      [][]string
	processed bool
	succeeded [][]string
	failed    [][]string // error message first
}

// NewServer starts an emulator requiring the given bearer token.
func NewServer(token string) *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		Token:       token,
		jobs:        make(map[string]*job),
		queryStates: []string{"InProgress", "JobComplete"},
		queryCSV:    "Id,Name\n001000000000001AAA,Acme\n",
		ingestFlow:  []string{"InProgress", "JobComplete"},
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.record, s.authenticate)

	jobs := r.Group(BasePath)
	{
		jobs.POST("/query", s.createQuery)
		jobs.GET("/query/:id", s.status)
		jobs.GET("/query/:id/results", s.queryResults)

		jobs.POST("/ingest", s.createIngest)
		jobs.GET("/ingest/:id", s.status)
		jobs.PATCH("/ingest/:id", s.patchIngest)
		jobs.PUT("/ingest/:id/batches", s.uploadBatch)
		jobs.GET("/ingest/:id/:category", s.ingestResults)
	}

	s.Server = httptest.NewServer(r)
	return s
}

// BaseURL returns the bulk base URL to configure clients with.
func (s *Server) BaseURL() string {
	return s.URL + BasePath
}

// SetQueryStates sets the states a new query job reports on successive polls.
func (s *Server) SetQueryStates(states ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryStates = states
}

// SetQueryResults sets the CSV returned by query results endpoints.
func (s *Server) SetQueryResults(csvText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryCSV = csvText
}

// SetIngestStates sets the states an ingest job reports after UploadComplete.
func (s *Server) SetIngestStates(states ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingestFlow = states
}

// FailRecords makes records matched by fn end up in failedResults.
func (s *Server) FailRecords(fn FailFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFunc = fn
}

// ScriptStates overrides the remaining poll states of an existing job.
func (s *Server) ScriptStates(id string, states ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.script = states
	}
}

// Requests returns every request seen so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// CountRequests returns how many requests matched method and path.
func (s *Server) CountRequests(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (s *Server) record(c *gin.Context) {
	body, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method:      c.Request.Method,
		Path:        strings.TrimPrefix(strings.TrimPrefix(c.Request.URL.Path, BasePath), "/"),
		ContentType: c.GetHeader("Content-Type"),
		Body:        body,
	})
	s.mu.Unlock()
	c.Next()
}

func (s *Server) authenticate(c *gin.Context) {
	if s.Token != "" && c.GetHeader("Authorization") != "Bearer "+s.Token {
		abortWithError(c, http.StatusUnauthorized, "INVALID_SESSION_ID", "Session expired or invalid")
		return
	}
	c.Next()
}

func abortWithError(c *gin.Context, code int, errorCode, message string) {
	c.AbortWithStatusJSON(code, []gin.H{{"errorCode": errorCode, "message": message}})
}

func newJobID() string {
	return "750" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:15]
}

func (s *Server) createQuery(c *gin.Context) {
	var req struct {
		Operation string `json:"operation"`
		Query     string `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "JSON_PARSER_ERROR", err.Error())
		return
	}
	if req.Operation != "query" && req.Operation != "queryAll" {
		abortWithError(c, http.StatusBadRequest, "INVALIDJOB", "Invalid operation: "+req.Operation)
		return
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(req.Query)), "select") {
		abortWithError(c, http.StatusBadRequest, "MALFORMED_QUERY", "unexpected token: "+req.Query)
		return
	}

	s.mu.Lock()
	j := &job{
		id:        newJobID(),
		kind:      "query",
		operation: req.Operation,
		query:     req.Query,
		state:     "UploadComplete",
		created:   time.Now().UTC(),
		script:    append([]string(nil), s.queryStates...),
	}
	s.jobs[j.id] = j
	info := s.info(j)
	s.mu.Unlock()

	c.JSON(http.StatusOK, info)
}

func (s *Server) createIngest(c *gin.Context) {
	var req struct {
		Object              string `json:"object"`
		Operation           string `json:"operation"`
		ExternalIDFieldName string `json:"externalIdFieldName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "JSON_PARSER_ERROR", err.Error())
		return
	}
	if req.Object == "" {
		abortWithError(c, http.StatusBadRequest, "INVALIDJOB", "object is required")
		return
	}
	if req.Operation == "upsert" && req.ExternalIDFieldName == "" {
		abortWithError(c, http.StatusBadRequest, "INVALIDJOB", "External ID was blank for upsert")
		return
	}

	s.mu.Lock()
	j := &job{
		id:        newJobID(),
		kind:      "ingest",
		operation: req.Operation,
		object:    req.Object,
		extID:     req.ExternalIDFieldName,
		state:     "Open",
		created:   time.Now().UTC(),
	}
	s.jobs[j.id] = j
	info := s.info(j)
	s.mu.Unlock()

	c.JSON(http.StatusOK, info)
}

func (s *Server) lookup(c *gin.Context, kind string) (*job, bool) {
	j, ok := s.jobs[c.Param("id")]
	if !ok || j.kind != kind {
		abortWithError(c, http.StatusNotFound, "NOT_FOUND", "The requested resource does not exist")
		return nil, false
	}
	return j, true
}

func kindOf(c *gin.Context) string {
	if strings.Contains(c.FullPath(), "/query/") {
		return "query"
	}
	return "ingest"
}

func (s *Server) status(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.lookup(c, kindOf(c))
	if !ok {
		return
	}
	if len(j.script) > 0 {
		j.state, j.script = j.script[0], j.script[1:]
	}
	if j.kind == "ingest" && j.state == "JobComplete" {
		s.process(j)
	}
	c.JSON(http.StatusOK, s.info(j))
}

func (s *Server) uploadBatch(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.lookup(c, "ingest")
	if !ok {
		return
	}
	if !strings.HasPrefix(c.GetHeader("Content-Type"), "text/csv") {
		abortWithError(c, http.StatusBadRequest, "INVALIDCONTENTTYPE", "Content-Type must be text/csv")
		return
	}
	if j.state != "Open" {
		abortWithError(c, http.StatusConflict, "INVALIDJOBSTATE", "Job is not open for uploads")
		return
	}

	body, _ := io.ReadAll(c.Request.Body)
	rows, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	if err != nil || len(rows) == 0 {
		abortWithError(c, http.StatusBadRequest, "CLIENTINPUTERROR", "invalid CSV batch")
		return
	}
	if j.header == nil {
		j.header = rows[0]
	}
	j.rows = append(j.rows, rows[1:]...)
	c.Status(http.StatusCreated)
}

func (s *Server) patchIngest(c *gin.Context) {
	var req struct {
		State string `json:"state"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "JSON_PARSER_ERROR", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.lookup(c, "ingest")
	if !ok {
		return
	}
	switch req.State {
	case "UploadComplete":
		if j.state != "Open" {
			abortWithError(c, http.StatusConflict, "INVALIDJOBSTATE", "Job is not open")
			return
		}
		j.state = "UploadComplete"
		j.script = append([]string(nil), s.ingestFlow...)
	case "Aborted":
		j.state = "Aborted"
		j.script = nil
	default:
		abortWithError(c, http.StatusBadRequest, "INVALIDJOBSTATE", "Unsupported state: "+req.State)
		return
	}
	c.JSON(http.StatusOK, s.info(j))
}

func (s *Server) process(j *job) {
	if j.processed {
		return
	}
	j.processed = true
	for _, row := range j.rows {
		rec := make(map[string]string, len(j.header))
		for i, field := range j.header {
			if i < len(row) {
				rec[field] = row[i]
			}
		}
		if s.failFunc != nil {
			if msg, failed := s.failFunc(rec); failed {
				j.failed = append(j.failed, append([]string{msg}, row...))
				continue
			}
		}
		j.succeeded = append(j.succeeded, row)
	}
}

func (s *Server) queryResults(c *gin.Context) {
	s.mu.Lock()
	j, ok := s.lookup(c, "query")
	payload := s.queryCSV
	s.mu.Unlock()
	if !ok {
		return
	}
	if j.state != "JobComplete" {
		abortWithError(c, http.StatusBadRequest, "INVALIDJOBSTATE", "Job is not complete")
		return
	}
	c.Data(http.StatusOK, "text/csv", []byte(payload))
}

func (s *Server) ingestResults(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.lookup(c, "ingest")
	if !ok {
		return
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	switch c.Param("category") {
	case "successfulResults":
		_ = w.Write(append([]string{"sf__Id", "sf__Created"}, j.header...))
		for i, row := range j.succeeded {
			_ = w.Write(append([]string{recordID(i), "true"}, row...))
		}
	case "failedResults":
		_ = w.Write(append([]string{"sf__Id", "sf__Error"}, j.header...))
		for _, row := range j.failed {
			_ = w.Write(append([]string{"", row[0]}, row[1:]...))
		}
	case "unprocessedrecords":
		_ = w.Write(j.header)
		if !j.processed {
			for _, row := range j.rows {
				_ = w.Write(row)
			}
		}
	default:
		abortWithError(c, http.StatusNotFound, "NOT_FOUND", "The requested resource does not exist")
		return
	}
	w.Flush()
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

func recordID(i int) string {
	return fmt.Sprintf("001%012dAAA", i+1)
}

func (s *Server) info(j *job) gin.H {
	info := gin.H{
		"id":              j.id,
		"operation":       j.operation,
		"state":           j.state,
		"createdById":     "005000000000001AAA",
		"createdDate":     j.created.Format("2006-01-02T15:04:05.000+0000"),
		"concurrencyMode": "Parallel",
		"contentType":     "CSV",
		"apiVersion":      64.0,
		"lineEnding":      "LF",
		"columnDelimiter": "COMMA",
	}
	if j.kind == "ingest" {
		info["object"] = j.object
		info["jobType"] = "V2Ingest"
		info["numberRecordsProcessed"] = 0
		info["numberRecordsFailed"] = 0
		if j.extID != "" {
			info["externalIdFieldName"] = j.extID
		}
		if j.processed {
			info["numberRecordsProcessed"] = len(j.succeeded) + len(j.failed)
			info["numberRecordsFailed"] = len(j.failed)
		}
	} else {
		info["object"] = "Account"
		info["jobType"] = "V2Query"
	}
	if j.errMsg != "" {
		info["errorMessage"] = j.errMsg
	}
	return info
}
