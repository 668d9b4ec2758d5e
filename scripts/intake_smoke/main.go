package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/noah-isme/batch-intake-api/internal/models"
	"github.com/noah-isme/batch-intake-api/internal/service"
)

type step struct {
	Name     string
	Method   string
	Path     string
	Expected int
	Status   int
	Duration time.Duration
	Message  string
	Error    error
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type runner struct {
	client *http.Client
	base   string
	token  string
	steps  []step
}

func main() {
	var (
		base     string
		token    string
		secret   string
		courseID string
		roster   string
		timeout  time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL including the prefix")
	flag.StringVar(&token, "token", "", "Bearer token; minted from -jwt-secret when empty")
	flag.StringVar(&secret, "jwt-secret", os.Getenv("JWT_SECRET"), "Secret used to mint a short-lived admin token")
	flag.StringVar(&courseID, "course", "", "Course to attach to the smoke batch")
	flag.StringVar(&roster, "roster", "", "CSV roster to upload; the sample template is used when empty")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if token == "" {
		if secret == "" {
			log.Fatal("either -token or -jwt-secret is required")
		}
		minted, err := service.NewTokenService(secret).Issue(models.JWTClaims{UserID: "intake-smoke", Role: models.RoleAdmin}, 15*time.Minute)
		if err != nil {
			log.Fatalf("failed to mint token: %v", err)
		}
		token = minted
	}

	r := &runner{client: &http.Client{Timeout: timeout}, base: strings.TrimRight(base, "/"), token: token}

	payload := map[string]interface{}{"max_capacity": 0}
	if courseID != "" {
		payload["course_id"] = courseID
	}
	body, _ := json.Marshal(payload)
	var batch models.BatchIntake
	if !r.do("create", http.MethodPost, "/batch-intakes", "application/json", body, http.StatusCreated, &batch) {
		finish(r.steps)
	}

	filename, data, err := loadRoster(r, roster)
	if err != nil {
		log.Fatalf("failed to load roster: %v", err)
	}
	contentType, form, err := multipartBody(filename, data)
	if err != nil {
		log.Fatalf("failed to build upload: %v", err)
	}
	id := batch.ID
	if r.do("upload", http.MethodPost, "/batch-intakes/"+id+"/upload", contentType, form, http.StatusOK, nil) &&
		r.do("validate", http.MethodPost, "/batch-intakes/"+id+"/validate", "", nil, http.StatusOK, nil) &&
		courseID != "" {
		r.do("process", http.MethodPost, "/batch-intakes/"+id+"/process", "", nil, http.StatusOK, nil)
	}
	r.do("detail", http.MethodGet, "/batch-intakes/"+id, "", nil, http.StatusOK, nil)
	r.do("messages", http.MethodGet, "/batch-intakes/"+id+"/messages", "", nil, http.StatusOK, nil)

	finish(r.steps)
}

func loadRoster(r *runner, path string) (string, []byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", nil, err
		}
		return filepath.Base(path), data, nil
	}
	resp, err := r.request(http.MethodGet, "/batch-intakes/template", "", nil)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("template download returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, err
	}
	return service.TemplateFilename, data, nil
}

func multipartBody(filename string, data []byte) (string, []byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", nil, err
	}
	if _, err := part.Write(data); err != nil {
		return "", nil, err
	}
	if err := writer.Close(); err != nil {
		return "", nil, err
	}
	return writer.FormDataContentType(), buf.Bytes(), nil
}

func (r *runner) request(method, path, contentType string, body []byte) (*http.Response, error) {
	if r.client == nil {
		return nil, errors.New("nil client")
	}
	req, err := http.NewRequest(method, r.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return r.client.Do(req)
}

func (r *runner) do(name, method, path, contentType string, body []byte, expected int, out interface{}) bool {
	s := step{Name: name, Method: method, Path: path, Expected: expected}
	start := time.Now()
	resp, err := r.request(method, path, contentType, body)
	s.Duration = time.Since(start)
	if err != nil {
		s.Error = err
		r.steps = append(r.steps, s)
		return false
	}
	defer resp.Body.Close()
	s.Status = resp.StatusCode

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	if err == nil {
		err = json.Unmarshal(raw, &env)
	}
	if err != nil {
		s.Error = fmt.Errorf("decode body: %w", err)
	} else if env.Error != nil {
		s.Message = env.Error.Message
	} else if out != nil {
		s.Error = json.Unmarshal(env.Data, out)
	}
	r.steps = append(r.steps, s)
	return s.Error == nil && s.Status == expected
}

func finish(steps []step) {
	failed := printReport(steps)
	fmt.Printf("Steps: %d, Failed: %d\n", len(steps), failed)
	if failed > 0 {
		os.Exit(1)
	}
	os.Exit(0)
}

func printReport(steps []step) int {
	failed := 0
	fmt.Println("Intake Smoke Report")
	fmt.Println("===================")
	for _, s := range steps {
		status := "OK"
		if s.Error != nil {
			status = "ERROR"
		} else if s.Status != s.Expected {
			status = "FAIL"
		}
		if status != "OK" {
			failed++
		}
		fmt.Printf("[%s] %s %s %s\n", status, s.Name, s.Method, s.Path)
		fmt.Printf("  Status: %d, expected %d (%s)\n", s.Status, s.Expected, s.Duration)
		if s.Message != "" {
			fmt.Printf("  Message: %s\n", s.Message)
		}
		if s.Error != nil {
			fmt.Printf("  Error: %v\n", s.Error)
		}
	}
	return failed
}
