package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/jchia/selda/internal/compiler"
	"github.com/jchia/selda/internal/schema"
)

// LoadResult contains the tables loaded from a schema directory.
type LoadResult struct {
	Tables    []*schema.Table
	CUEValue  cue.Value // The raw CUE value for validation
	FileCount int       // Number of CUE files found
}

// Table returns the table named name, or nil.
func (r *LoadResult) Table(name string) *schema.Table {
	for _, t := range r.Tables {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// Select returns the named tables in argument order, or every table
// when names is empty.
func (r *LoadResult) Select(names []string) ([]*schema.Table, error) {
	if len(names) == 0 {
		return r.Tables, nil
	}
	out := make([]*schema.Table, 0, len(names))
	for _, n := range names {
		t := r.Table(n)
		if t == nil {
			return nil, &LoadError{Code: ErrCodeUnknownTable, Message: fmt.Sprintf("table %q is not declared", n)}
		}
		out = append(out, t)
	}
	return out, nil
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadCUE loads the CUE package in dir without compiling tables.
func LoadCUE(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return &LoadResult{CUEValue: value, FileCount: len(cueFiles)}, nil
}

// LoadSchema loads dir and compiles every declared table. It fails on
// the first invalid table; use validate to see every problem.
func LoadSchema(dir string) (*LoadResult, error) {
	res, err := LoadCUE(dir)
	if err != nil {
		return nil, err
	}
	tables, err := compiler.CompileTables(res.CUEValue)
	if err != nil {
		return nil, convertCompileError(err)
	}
	if len(tables) == 0 {
		return nil, &LoadError{Code: compiler.ErrNoTables, Message: "no tables declared in schema"}
	}
	res.Tables = tables
	return res, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    compiler.ErrInvalidColumn,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	if schema.IsValidationError(err) {
		return &LoadError{Code: compiler.ErrSchemaRule, Message: err.Error()}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}
