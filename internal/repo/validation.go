package repo

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	namePattern    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	segmentPattern = regexp.MustCompile(`^[A-Za-z0-9._+-]+$`)
)

// ValidateName checks a project or repository name.
func ValidateName(name string) error {
	return validation.Validate(name,
		validation.Required,
		validation.Length(1, 100),
		validation.Match(namePattern).Error("must start with an alphanumeric character and contain only alphanumerics, '.', '_' and '-'"),
	)
}

// ValidateFilePath checks an absolute file path.
func ValidateFilePath(path string) error {
	return validation.Validate(path,
		validation.Required,
		validation.By(func(interface{}) error { return checkPath(path, false) }),
	)
}

// ValidateDirPath checks an absolute directory path. "/" and paths with a
// trailing slash are accepted.
func ValidateDirPath(path string) error {
	return validation.Validate(path,
		validation.Required,
		validation.By(func(interface{}) error { return checkPath(path, true) }),
	)
}

func checkPath(path string, dir bool) error {
	if !strings.HasPrefix(path, "/") {
		return validation.NewError("validation_path_relative", "must be an absolute path")
	}
	if dir && path == "/" {
		return nil
	}
	trimmed := strings.TrimPrefix(path, "/")
	if dir {
		trimmed = strings.TrimSuffix(trimmed, "/")
	}
	if trimmed == "" || strings.HasSuffix(path, "/") && !dir {
		return validation.NewError("validation_path_malformed", "must not end with '/'")
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == "" {
			return validation.NewError("validation_path_malformed", "must not contain empty segments")
		}
		if seg == "." || seg == ".." {
			return validation.NewError("validation_path_malformed", "must not contain '.' or '..' segments")
		}
		if !segmentPattern.MatchString(seg) {
			return validation.NewError("validation_path_malformed", "contains forbidden characters")
		}
	}
	return nil
}

// validateCommitInput checks the caller-supplied parts of a commit.
func validateCommitInput(summary string, changes []Change, allowEmpty bool) error {
	if err := validation.Validate(summary, validation.Required, validation.Length(1, 1024)); err != nil {
		return validation.Errors{"summary": err}
	}
	if !allowEmpty && len(changes) == 0 {
		return validation.Errors{"changes": validation.NewError("validation_required", "cannot be blank")}
	}
	for _, c := range changes {
		if err := validateChange(c); err != nil {
			return err
		}
	}
	return nil
}

func validateChange(c Change) error {
	if err := ValidateFilePath(c.Path); err != nil {
		return validation.Errors{"path": err}
	}
	switch c.Type {
	case ChangeUpsertJSON, ChangeApplyJSONPatch, ChangeApplyTextPatch:
		if err := validation.Validate(c.Content, validation.Required); err != nil {
			return validation.Errors{"content": err}
		}
	case ChangeUpsertText:
		// Empty text files are legitimate.
	case ChangeRename:
		if err := ValidateFilePath(c.NewPath); err != nil {
			return validation.Errors{"newPath": err}
		}
	case ChangeRemove:
	default:
		return validation.Errors{"type": validation.NewError("validation_change_type", "unknown change type")}
	}
	return nil
}
