// Package protocol serves the line-delimited JSON request protocol on
// a reader/writer pair, usually stdin and stdout. Every input line is
// one request; every output line is one response or progress frame.
// Requests run concurrently, so responses may arrive out of order and
// clients must correlate them by id.
package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/franz/music-indexer/internal/app"
	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/query"
	"github.com/franz/music-indexer/internal/scan"
	"github.com/franz/music-indexer/internal/storage"
	"github.com/franz/music-indexer/internal/util"
	"github.com/franz/music-indexer/internal/validate"
	"github.com/google/uuid"
)

// maxLineBytes bounds a single request line. Metadata documents for
// very large bands stay far below this.
const maxLineBytes = 16 << 20

// Error codes carried in failed responses.
const (
	CodeParse          = "PARSE_ERROR"
	CodeScan           = "SCAN_ERROR"
	CodeStorage        = "STORAGE_ERROR"
	CodeLock           = "LOCK_ERROR"
	CodeWrite          = "WRITE_ERROR"
	CodeCorrupt        = "CORRUPT_ERROR"
	CodeValidation     = "VALIDATION_ERROR"
	CodeMigration      = "MIGRATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeTimeout        = "TIMEOUT"
	CodeCancelled      = "CANCELLED"
	CodeInternal       = "INTERNAL_ERROR"
)

// errBadRequest marks malformed frames and arguments. It never leaves
// this package except as an INVALID_REQUEST response.
var errBadRequest = errors.New("invalid request")

// Request is one line of input. The id is kept as raw JSON and echoed
// back untouched; requests without one get a generated UUID so that
// every response is correlatable.
type Request struct {
	ID   json.RawMessage `json:"id"`
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args"`
}

// Response is the final frame for a request. Exactly one of Result and
// Error is set.
type Response struct {
	ID     json.RawMessage `json:"id"`
	OK     bool            `json:"ok"`
	Result any             `json:"result,omitempty"`
	Error  *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// progressFrame is an interim frame emitted during long scans, before
// the final response of the same id.
type progressFrame struct {
	ID       json.RawMessage `json:"id"`
	Event    string          `json:"event"`
	Progress progressBody    `json:"progress"`
}

type progressBody struct {
	BandsScanned int     `json:"bands_scanned"`
	BandsTotal   int     `json:"bands_total"`
	ETASeconds   float64 `json:"eta_seconds"`
}

// frameWriter serializes frames from concurrent handlers onto one
// stream. The encoder terminates every frame with a newline.
type frameWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (w *frameWriter) write(frame any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(frame)
}

type opFunc func(ctx context.Context, req *Request) (any, error)

// Server dispatches protocol requests against an application
// container.
type Server struct {
	app       *app.App
	opTimeout time.Duration
	version   string

	writer *frameWriter
	ops    map[string]opFunc
}

// New creates a protocol server for the given application.
func New(a *app.App) *Server {
	s := &Server{
		app:       a,
		opTimeout: a.Config.OpTimeout,
		version:   a.Config.Version,
	}
	s.ops = map[string]opFunc{
		"ping":                        s.handlePing,
		"scan_music_folders":          s.handleScan,
		"get_band_list":               s.handleBandList,
		"get_band_metadata":           s.handleGetBand,
		"save_band_metadata":          s.handleSaveMetadata,
		"save_band_analyze":           s.handleSaveAnalyze,
		"save_collection_insight":     s.handleSaveInsight,
		"validate_band_metadata":      s.handleValidate,
		"advanced_search_albums":      s.handleSearchAlbums,
		"analyze_collection_insights": s.handleAnalyze,
		"get_scan_history":            s.handleScanHistory,
		"rollback_band_metadata":      s.handleRollback,
		"scrub_collection_index":      s.handleScrub,
	}
	return s
}

// Serve reads requests from in until EOF and writes frames to out.
// Each request runs in its own goroutine under the per-operation
// timeout; Serve returns once the input is exhausted and every
// in-flight request has been answered.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.writer = &frameWriter{enc: json.NewEncoder(out)}

	util.InfoLog("Serving protocol on stdio, %d operations, %s timeout", len(s.ops), s.opTimeout)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var wg sync.WaitGroup
	for sc.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.respondError(nil, &ErrorBody{Code: CodeInvalidRequest, Message: "malformed request: " + err.Error()})
			continue
		}
		if len(req.ID) == 0 || bytes.Equal(req.ID, []byte("null")) {
			req.ID = json.RawMessage(strconv.Quote(uuid.NewString()))
		}
		if req.Op == "" {
			s.respondError(req.ID, &ErrorBody{Code: CodeInvalidRequest, Message: "missing op"})
			continue
		}

		wg.Add(1)
		go func(r *Request) {
			defer wg.Done()
			s.dispatch(ctx, r)
		}(&req)
	}
	wg.Wait()

	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading requests: %w", err)
	}
	util.InfoLog("Protocol input closed, shutting down")
	return nil
}

func (s *Server) dispatch(ctx context.Context, req *Request) {
	handler, ok := s.ops[req.Op]
	if !ok {
		s.respondError(req.ID, &ErrorBody{Code: CodeInvalidRequest, Message: fmt.Sprintf("unknown operation %q", req.Op)})
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	started := time.Now()
	result, err := handler(opCtx, req)
	if err != nil {
		util.DebugLog("Operation %s failed after %s: %v", req.Op, time.Since(started).Round(time.Millisecond), err)
		s.respondError(req.ID, errorBody(err))
		return
	}
	util.DebugLog("Operation %s completed in %s", req.Op, time.Since(started).Round(time.Millisecond))
	s.respond(req.ID, result)
}

func (s *Server) respond(id json.RawMessage, result any) {
	if err := s.writer.write(Response{ID: id, OK: true, Result: result}); err != nil {
		util.ErrorLog("Failed to write response: %v", err)
	}
}

func (s *Server) respondError(id json.RawMessage, body *ErrorBody) {
	if err := s.writer.write(Response{ID: id, OK: false, Error: body}); err != nil {
		util.ErrorLog("Failed to write error response: %v", err)
	}
}

func (s *Server) writeProgress(id json.RawMessage, scanned, total int, etaSeconds float64) {
	frame := progressFrame{
		ID:    id,
		Event: "progress",
		Progress: progressBody{
			BandsScanned: scanned,
			BandsTotal:   total,
			ETASeconds:   math.Round(etaSeconds*10) / 10,
		},
	}
	if err := s.writer.write(frame); err != nil {
		util.WarnLog("Failed to write progress frame: %v", err)
	}
}

// codeFor maps an operation failure to a wire code. Context outcomes
// win over sentinel kinds; the generic storage kind is matched after
// its more specific siblings because wrapped chains can carry both.
func codeFor(err error) string {
	switch {
	case errors.Is(err, errBadRequest):
		return CodeInvalidRequest
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.Is(err, util.ErrValidation):
		return CodeValidation
	case errors.Is(err, util.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, util.ErrParse):
		return CodeParse
	case errors.Is(err, util.ErrScan):
		return CodeScan
	case errors.Is(err, util.ErrMigration):
		return CodeMigration
	case errors.Is(err, util.ErrLock):
		return CodeLock
	case errors.Is(err, util.ErrWrite):
		return CodeWrite
	case errors.Is(err, util.ErrCorrupt):
		return CodeCorrupt
	case errors.Is(err, util.ErrStorage):
		return CodeStorage
	default:
		return CodeInternal
	}
}

func errorBody(err error) *ErrorBody {
	body := &ErrorBody{Code: codeFor(err), Message: err.Error()}
	var vErr *validate.Error
	if errors.As(err, &vErr) {
		body.Details = map[string]any{
			"errors":   vErr.Report.Errors,
			"warnings": vErr.Report.Warnings,
		}
	}
	return body
}

// parseArgs decodes the request arguments. Absent or null args leave
// dst at its zero value.
func parseArgs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: bad args: %v", errBadRequest, err)
	}
	return nil
}

// SaveOutcome summarizes a completed write for the client.
type SaveOutcome struct {
	BandName    string           `json:"band_name"`
	Created     bool             `json:"created,omitempty"`
	AlbumsCount int              `json:"albums_count"`
	LastUpdated string           `json:"last_updated"`
	Validation  *validate.Report `json:"validation,omitempty"`
}

func saveOutcome(res *storage.SaveResult) *SaveOutcome {
	return &SaveOutcome{
		BandName:    res.Band.BandName,
		Created:     res.Created,
		AlbumsCount: res.Band.AlbumsCount,
		LastUpdated: res.Band.LastUpdated,
		Validation:  res.Report,
	}
}

func (s *Server) handlePing(ctx context.Context, req *Request) (any, error) {
	return map[string]any{"pong": true, "version": s.version}, nil
}

type scanArgs struct {
	ForceRescan   bool `json:"force_rescan"`
	ForceFullScan bool `json:"force_full_scan"`
	DryRun        bool `json:"dry_run"`
}

func (s *Server) handleScan(ctx context.Context, req *Request) (any, error) {
	var a scanArgs
	if err := parseArgs(req.Args, &a); err != nil {
		return nil, err
	}
	id := req.ID
	return s.app.Scanner.Scan(ctx, scan.Options{
		Force:  a.ForceRescan,
		Full:   a.ForceFullScan,
		DryRun: a.DryRun,
		Progress: func(scanned, total int, etaSeconds float64) {
			s.writeProgress(id, scanned, total, etaSeconds)
		},
	})
}

func (s *Server) handleBandList(ctx context.Context, req *Request) (any, error) {
	var p query.BandListParams
	if err := parseArgs(req.Args, &p); err != nil {
		return nil, err
	}
	return s.app.Query.BandList(ctx, p)
}

type bandArgs struct {
	BandName string `json:"band_name"`
}

func requireBandName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: band_name is required", errBadRequest)
	}
	return name, nil
}

func (s *Server) handleGetBand(ctx context.Context, req *Request) (any, error) {
	var a bandArgs
	if err := parseArgs(req.Args, &a); err != nil {
		return nil, err
	}
	name, err := requireBandName(a.BandName)
	if err != nil {
		return nil, err
	}
	return s.app.Store.LoadBand(ctx, name)
}

type saveMetadataArgs struct {
	BandName        string      `json:"band_name"`
	Metadata        *model.Band `json:"metadata"`
	PreserveAnalyze *bool       `json:"preserve_analyze"`
}

func (s *Server) handleSaveMetadata(ctx context.Context, req *Request) (any, error) {
	var a saveMetadataArgs
	if err := parseArgs(req.Args, &a); err != nil {
		return nil, err
	}
	name, err := requireBandName(a.BandName)
	if err != nil {
		return nil, err
	}
	if a.Metadata == nil {
		return nil, fmt.Errorf("%w: metadata is required", errBadRequest)
	}
	preserve := true
	if a.PreserveAnalyze != nil {
		preserve = *a.PreserveAnalyze
	}

	res, err := s.app.Store.SaveBand(ctx, name, a.Metadata, storage.SaveOptions{
		PreserveAnalyze: preserve,
		CreateMissing:   true,
	})
	if err != nil {
		return nil, err
	}
	s.app.RefreshBandIndex(ctx, res.Band)
	return saveOutcome(res), nil
}

type saveAnalyzeArgs struct {
	BandName             string              `json:"band_name"`
	Analysis             *model.BandAnalysis `json:"analysis"`
	AnalyzeMissingAlbums bool                `json:"analyze_missing_albums"`
}

func (s *Server) handleSaveAnalyze(ctx context.Context, req *Request) (any, error) {
	var a saveAnalyzeArgs
	if err := parseArgs(req.Args, &a); err != nil {
		return nil, err
	}
	name, err := requireBandName(a.BandName)
	if err != nil {
		return nil, err
	}
	if a.Analysis == nil {
		return nil, fmt.Errorf("%w: analysis is required", errBadRequest)
	}

	res, err := s.app.Store.SaveAnalysis(ctx, name, a.Analysis, a.AnalyzeMissingAlbums)
	if err != nil {
		return nil, err
	}
	s.app.RefreshBandIndex(ctx, res.Band)
	return saveOutcome(res), nil
}

type saveInsightArgs struct {
	Insight map[string]any `json:"insight"`
}

func (s *Server) handleSaveInsight(ctx context.Context, req *Request) (any, error) {
	var a saveInsightArgs
	if err := parseArgs(req.Args, &a); err != nil {
		return nil, err
	}
	return s.app.Insights.SaveInsight(ctx, a.Insight)
}

type validateArgs struct {
	BandName string      `json:"band_name"`
	Metadata *model.Band `json:"metadata"`
}

// handleValidate runs the save-time checks without writing: migrate,
// normalize, validate, report. An invalid document is a successful
// validation, so the report travels as the result, not as an error.
func (s *Server) handleValidate(ctx context.Context, req *Request) (any, error) {
	var a validateArgs
	if err := parseArgs(req.Args, &a); err != nil {
		return nil, err
	}
	if a.Metadata == nil {
		return nil, fmt.Errorf("%w: metadata is required", errBadRequest)
	}
	band := a.Metadata.Clone()
	if band == nil {
		return nil, fmt.Errorf("%w: metadata is not serializable", errBadRequest)
	}
	if name := strings.TrimSpace(a.BandName); name != "" {
		band.BandName = name
	}
	if _, err := storage.Migrate(band); err != nil {
		return nil, err
	}
	band.Normalize()
	return validate.Band(band), nil
}

func (s *Server) handleSearchAlbums(ctx context.Context, req *Request) (any, error) {
	var p query.AlbumSearchParams
	if err := parseArgs(req.Args, &p); err != nil {
		return nil, err
	}
	return s.app.Query.SearchAlbums(ctx, p)
}

func (s *Server) handleAnalyze(ctx context.Context, req *Request) (any, error) {
	return s.app.Insights.Analyze(ctx)
}

type historyArgs struct {
	Limit int `json:"limit"`
}

func (s *Server) handleScanHistory(ctx context.Context, req *Request) (any, error) {
	var a historyArgs
	if err := parseArgs(req.Args, &a); err != nil {
		return nil, err
	}
	if s.app.Journal == nil {
		return nil, fmt.Errorf("%w: scan journal unavailable", util.ErrStorage)
	}
	runs, err := s.app.Journal.RecentRuns(a.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"runs": runs}, nil
}

func (s *Server) handleRollback(ctx context.Context, req *Request) (any, error) {
	var a bandArgs
	if err := parseArgs(req.Args, &a); err != nil {
		return nil, err
	}
	name, err := requireBandName(a.BandName)
	if err != nil {
		return nil, err
	}
	band, err := s.app.Rollback(ctx, name)
	if err != nil {
		return nil, err
	}
	return &SaveOutcome{
		BandName:    band.BandName,
		AlbumsCount: band.AlbumsCount,
		LastUpdated: band.LastUpdated,
	}, nil
}

type scrubArgs struct {
	DryRun bool `json:"dry_run"`
}

func (s *Server) handleScrub(ctx context.Context, req *Request) (any, error) {
	var a scrubArgs
	if err := parseArgs(req.Args, &a); err != nil {
		return nil, err
	}
	return s.app.Scrub(ctx, a.DryRun)
}
