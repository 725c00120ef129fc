// Command sandbox-server runs the HTTP server inside the isolation
// boundary. It executes Python code in temp-dir subprocesses with a
// hard wall-clock timeout and reports the outcome as success, error,
// or timeout.
//
// Configuration:
//
//	SANDBOX_PORT           - Listen port (default: 8080)
//	SANDBOX_MAX_CONCURRENT - Max concurrent executions (default: 3)
//	SANDBOX_PYTHON         - Python interpreter (default: python3)
//	SANDBOX_PYTHON_INDEX   - Package index URL (default: https://pypi.org/simple/)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
)

func main() {
	port := envOr("SANDBOX_PORT", "8080")
	python := envOr("SANDBOX_PYTHON", "python3")
	maxConcurrent := envOrInt("SANDBOX_MAX_CONCURRENT", 3)
	pythonIndex := envOr("SANDBOX_PYTHON_INDEX", "https://pypi.org/simple/")

	if _, err := exec.LookPath(python); err != nil {
		slog.Error("python interpreter not found in PATH", "interpreter", python)
		os.Exit(1)
	}

	srv := &sandboxServer{
		python:        python,
		pythonVersion: detectPythonVersion(python),
		maxConcurrent: int32(maxConcurrent),
		pythonIndex:   pythonIndex,
		startTime:     time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", srv.handleExecute)
	mux.HandleFunc("GET /health", srv.handleHealth)

	httpSrv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout: 30 * time.Second,
		// Must exceed the largest execution budget (240s default) plus
		// package installation time.
		WriteTimeout: 600 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("sandbox server starting",
			"port", port,
			"python", srv.pythonVersion,
			"max_concurrent", maxConcurrent,
		)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
}

type sandboxServer struct {
	python        string
	pythonVersion string
	maxConcurrent int32
	currentLoad   atomic.Int32
	pythonIndex   string
	startTime     time.Time
}

type executeRequest struct {
	Code           string   `json:"code"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	Requirements   []string `json:"requirements,omitempty"`
}

type executeResponse struct {
	Status          string `json:"status"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        int    `json:"exit_code"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

func (s *sandboxServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	// Check capacity.
	current := s.currentLoad.Add(1)
	defer s.currentLoad.Add(-1)

	if current > s.maxConcurrent {
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("at capacity (%d/%d concurrent executions)", current, s.maxConcurrent))
		return
	}

	var req executeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 10*1024*1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = 240
	}

	codePreview := req.Code
	if len(codePreview) > 120 {
		codePreview = codePreview[:120] + "..."
	}
	slog.Info("execute request",
		"code", codePreview,
		"timeout", req.TimeoutSeconds,
		"requirements", len(req.Requirements),
	)

	tmpDir, err := os.MkdirTemp("", "codeloop-exec-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create temp dir: "+err.Error())
		return
	}
	defer os.RemoveAll(tmpDir)

	if len(req.Requirements) > 0 {
		if installErr := s.installRequirements(r.Context(), tmpDir, req.Requirements, req.TimeoutSeconds); installErr != nil {
			// Installation failures count against the code, not the
			// infrastructure: the generator picked the packages.
			writeJSON(w, executeResponse{
				Status:   "error",
				Stderr:   "package installation failed: " + installErr.Error(),
				ExitCode: -1,
			})
			return
		}
	}

	codePath := filepath.Join(tmpDir, "main.py")
	if err := os.WriteFile(codePath, []byte(req.Code), 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to write code: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(req.TimeoutSeconds)*time.Second)
	defer cancel()

	startTime := time.Now()
	cmd := exec.CommandContext(ctx, s.python, codePath)
	cmd.Dir = tmpDir
	cmd.Env = append(os.Environ(), "PYTHONPATH="+filepath.Join(tmpDir, ".pylibs"))

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	execErr := cmd.Run()
	duration := time.Since(startTime)

	exitCode := 0
	status := "success"
	if execErr != nil {
		// Timeout takes precedence over the kill-induced exit error.
		if ctx.Err() == context.DeadlineExceeded {
			status = "timeout"
			exitCode = -1
			if stderrBuf.Len() == 0 {
				stderrBuf.WriteString(fmt.Sprintf("execution timed out after %d seconds", req.TimeoutSeconds))
			}
		} else if exitErr, ok := execErr.(*exec.ExitError); ok {
			status = "error"
			exitCode = exitErr.ExitCode()
		} else {
			status = "error"
			exitCode = -1
		}
	}

	stdoutPreview := stdoutBuf.String()
	if len(stdoutPreview) > 200 {
		stdoutPreview = stdoutPreview[:200] + "..."
	}
	slog.Info("execute complete",
		"status", status,
		"exit_code", exitCode,
		"duration_ms", duration.Milliseconds(),
		"stdout", stdoutPreview,
	)

	writeJSON(w, executeResponse{
		Status:          status,
		Stdout:          stdoutBuf.String(),
		Stderr:          stderrBuf.String(),
		ExitCode:        exitCode,
		ExecutionTimeMs: duration.Milliseconds(),
	})
}

// installRequirements installs packages into a per-execution target
// directory so concurrent runs cannot interfere with each other.
func (s *sandboxServer) installRequirements(ctx context.Context, workDir string, requirements []string, timeoutSecs int) error {
	installCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	targetDir := filepath.Join(workDir, ".pylibs")
	args := []string{"-m", "pip", "install", "--quiet", "--target", targetDir, "--index-url", s.pythonIndex}
	args = append(args, requirements...)

	cmd := exec.CommandContext(installCtx, s.python, args...)
	cmd.Dir = workDir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %s", err.Error(), string(output))
	}
	return nil
}

type healthResponse struct {
	Status        string `json:"status"`
	PythonVersion string `json:"python_version"`
	Capacity      int    `json:"capacity"`
	CurrentLoad   int    `json:"current_load"`
	UptimeSecs    int64  `json:"uptime_seconds"`
}

func (s *sandboxServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, healthResponse{
		Status:        "healthy",
		PythonVersion: s.pythonVersion,
		Capacity:      int(s.maxConcurrent),
		CurrentLoad:   int(s.currentLoad.Load()),
		UptimeSecs:    int64(time.Since(s.startTime).Seconds()),
	})
}

// detectPythonVersion returns the interpreter's version string.
func detectPythonVersion(python string) string {
	output, err := exec.Command(python, "--version").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(output))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return defaultVal
	}
	return n
}
