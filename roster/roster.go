package roster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ETS-Next-Gen/writing-observer-sub002/dag"
	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
)

// FunctionName is the name queries call the roster by.
const FunctionName = "course_roster"

// Source lists the students of a course. Each student is an object with
// at least a non-empty "user_id".
type Source interface {
	Students(ctx context.Context, courseID string) ([]map[string]any, error)
}

// Function adapts src to a query function taking a course_id argument.
func Function(src Source) dag.Func {
	return func(ctx context.Context, args dag.Args) (any, error) {
		id, ok := args["course_id"].(string)
		if !ok || id == "" {
			return nil, errors.InvalidInput("course_id", "course_id must be a non-empty string")
		}
		return src.Students(ctx, id)
	}
}

// FileSource reads <dir>/<course_id>.{yaml,yml,json}:
//
//	students:
//	  - user_id: s1
//	    profile: {name: {full_name: Ada Lovelace}}
type FileSource struct {
	dir string
}

// NewFileSource creates a FileSource over dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

type rosterFile struct {
	Students []map[string]any `yaml:"students"`
}

// Students returns the course's students sorted by user_id.
func (s *FileSource) Students(ctx context.Context, courseID string) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validCourseID(courseID); err != nil {
		return nil, err
	}

	path, ok := s.find(courseID)
	if !ok {
		return nil, errors.NotFound("course", courseID)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roster: read %s: %w", path, err)
	}
	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("roster: parse %s: %w", path, err)
	}

	if err := normalize(f.Students); err != nil {
		return nil, fmt.Errorf("roster: %s: %w", path, err)
	}
	return f.Students, nil
}

// normalize checks every student has a user_id, renders numeric ids as
// strings so keys match the ids events carry, and sorts by user_id.
func normalize(students []map[string]any) error {
	for i, st := range students {
		switch id := st["user_id"].(type) {
		case string:
			if id != "" {
				continue
			}
		case int, int64, float64:
			st["user_id"] = fmt.Sprint(id)
			continue
		}
		return fmt.Errorf("student %d has no user_id", i)
	}
	sort.SliceStable(students, func(i, j int) bool {
		return students[i]["user_id"].(string) < students[j]["user_id"].(string)
	})
	return nil
}

// validCourseID rejects ids that could escape a directory or URL path.
func validCourseID(id string) error {
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return errors.InvalidInput("course_id", fmt.Sprintf("invalid course id %q", id))
	}
	return nil
}

func (s *FileSource) find(courseID string) (string, bool) {
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		path := filepath.Join(s.dir, courseID+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// Synthetic generates n students per course with ids <course>-s00, ...
type Synthetic int

// Students returns n generated students.
func (n Synthetic) Students(ctx context.Context, courseID string) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]map[string]any, int(n))
	for i := range out {
		id := fmt.Sprintf("%s-s%02d", courseID, i)
		out[i] = map[string]any{
			"user_id": id,
			"profile": map[string]any{
				"name":          map[string]any{"full_name": fmt.Sprintf("Student %d", i+1)},
				"email_address": id + "@example.edu",
			},
		}
	}
	return out, nil
}
