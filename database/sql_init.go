/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/uptrace/bun"
)

const commonEnvironment = "common"

var fileOrderPattern = regexp.MustCompile(`^(\d+)_`)

// SQLInitManager executes the seed files found under
// <root>/common and <root>/environments/<environment>.
type SQLInitManager struct {
	db          bun.IDB
	environment string
	sqlRootPath string
	templating  bool
	logger      Logger
}

// SQLFileInfo describes a seed file.
type SQLFileInfo struct {
	Path        string
	Name        string
	Order       int
	Environment string
}

// ExecutionResult contains the outcome of executing a single SQL file.
type ExecutionResult struct {
	File         string
	Duration     time.Duration
	RowsAffected int64
}

func NewSQLInitManager(db bun.IDB, environment string) *SQLInitManager {
	if environment == "" {
		environment = "prod"
	}
	return &SQLInitManager{
		db:          db,
		environment: environment,
		sqlRootPath: "configs/sql",
		logger:      GetLogger(),
	}
}

func (s *SQLInitManager) SetSQLRootPath(path string) {
	s.sqlRootPath = path
}

func (s *SQLInitManager) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// EnableTemplating renders files with text/template before execution.
// Environment variables, ENVIRONMENT and TIMESTAMP are available as keys.
func (s *SQLInitManager) EnableTemplating(enabled bool) {
	s.templating = enabled
}

// ExecuteInitialization runs all seed files, common ones first. Each file
// runs in its own transaction, or in the caller's when db is a bun.Tx.
func (s *SQLInitManager) ExecuteInitialization(ctx context.Context) ([]ExecutionResult, error) {
	s.logger.Info("Starting SQL initialization", "environment", s.environment, "sql_path", s.sqlRootPath)

	files, err := s.GetSQLFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to get SQL files: %w", err)
	}

	results := make([]ExecutionResult, 0, len(files))
	for _, file := range files {
		result, err := s.executeFile(ctx, file)
		if err != nil {
			s.logger.Error("SQL file execution failed", "file", file.Path, "error", err)
			return results, fmt.Errorf("SQL file execution failed %s: %w", file.Path, err)
		}
		results = append(results, result)
		s.logger.Info("SQL file executed", "file", result.File, "duration", result.Duration, "rows_affected", result.RowsAffected)
	}
	return results, nil
}

// GetSQLFiles lists seed files in execution order.
func (s *SQLInitManager) GetSQLFiles() ([]SQLFileInfo, error) {
	var files []SQLFileInfo
	dirs := []struct{ path, env string }{
		{filepath.Join(s.sqlRootPath, commonEnvironment), commonEnvironment},
		{filepath.Join(s.sqlRootPath, "environments", s.environment), s.environment},
	}
	for _, dir := range dirs {
		if _, err := os.Stat(dir.path); os.IsNotExist(err) {
			continue
		}
		found, err := filesInDir(dir.path, dir.env)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Environment != files[j].Environment {
			return files[i].Environment == commonEnvironment
		}
		if files[i].Order != files[j].Order {
			return files[i].Order < files[j].Order
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

func filesInDir(dir, environment string) ([]SQLFileInfo, error) {
	var files []SQLFileInfo
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			return nil
		}
		files = append(files, SQLFileInfo{
			Path:        path,
			Name:        d.Name(),
			Order:       fileOrder(d.Name()),
			Environment: environment,
		})
		return nil
	})
	return files, err
}

// fileOrder reads the numeric prefix of names like "010_users.sql".
func fileOrder(name string) int {
	if m := fileOrderPattern.FindStringSubmatch(name); len(m) > 1 {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 999
}

func (s *SQLInitManager) executeFile(ctx context.Context, file SQLFileInfo) (ExecutionResult, error) {
	start := time.Now()
	result := ExecutionResult{File: file.Path}

	content, err := os.ReadFile(file.Path)
	if err != nil {
		return result, fmt.Errorf("failed to read file: %w", err)
	}
	text := string(content)
	if s.templating {
		if text, err = s.render(text); err != nil {
			return result, err
		}
	}
	statements := splitSQLStatements(text)

	run := func(ctx context.Context, db bun.IDB) error {
		for _, stmt := range statements {
			res, err := db.ExecContext(ctx, stmt)
			if err != nil {
				return fmt.Errorf("failed to execute SQL statement: %s, error: %w", stmt, err)
			}
			n, _ := res.RowsAffected()
			result.RowsAffected += n
		}
		return nil
	}

	if tx, ok := s.db.(bun.Tx); ok {
		err = run(ctx, tx)
	} else {
		err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return run(ctx, tx)
		})
	}
	result.Duration = time.Since(start)
	return result, err
}

func (s *SQLInitManager) render(content string) (string, error) {
	tmpl, err := template.New("sql").Option("missingkey=zero").Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	vars := make(map[string]string)
	for _, env := range os.Environ() {
		if k, v, ok := strings.Cut(env, "="); ok {
			vars[k] = v
		}
	}
	vars["ENVIRONMENT"] = s.environment
	vars["TIMESTAMP"] = time.Now().Format("2006-01-02 15:04:05")

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// splitSQLStatements splits on lines ending with ';' and drops "--" comments.
func splitSQLStatements(content string) []string {
	var statements []string
	var current strings.Builder

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString(" ")
		if strings.HasSuffix(line, ";") {
			flush()
		}
	}
	flush()
	return statements
}
