package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

func (v Validation) Error() string {
	return strings.Join(v.Errors, "; ")
}

var validate = newValidator()

// newValidator reports fields by their yaml names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// NormalizeAndValidate returns a trimmed copy of cfg and what is wrong with it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation

	out.DataDir = strings.TrimSpace(out.DataDir)
	out.DBDriver = strings.ToLower(strings.TrimSpace(out.DBDriver))
	out.DatabaseURL = strings.TrimSpace(out.DatabaseURL)
	out.SourcesEnv = strings.TrimSpace(out.SourcesEnv)
	out.SourcesFile = strings.TrimSpace(out.SourcesFile)
	out.Serve.Schedule = strings.TrimSpace(out.Serve.Schedule)
	out.Log.Format = strings.ToLower(strings.TrimSpace(out.Log.Format))
	out.Log.Level = strings.ToLower(strings.TrimSpace(out.Log.Level))

	if err := validate.Struct(out); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			res.addErr("%v", err)
			return out, res
		}
		for _, fe := range verrs {
			res.addErr("%s %s", fieldPath(fe), describe(fe))
		}
	}

	// sanity
	if out.Fetch.RequestsPerSecond == 0 {
		res.addWarn("fetch.requests_per_second is 0; per-host rate limiting is off")
	}
	if out.DBDriver == "postgres" && out.DataDir == "." {
		res.addWarn("data_dir is the working directory; the run lock will be created there")
	}
	if out.Sync.Concurrency > 1 && out.Fetch.RequestsPerSecond > 5 {
		res.addWarn("sync.concurrency=%d with %.1f requests per second may trip board rate limits",
			out.Sync.Concurrency, out.Fetch.RequestsPerSecond)
	}

	return out, res
}

// fieldPath drops the root struct name: "Config.fetch.burst" -> "fetch.burst".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required when %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "http_url":
		return "must be an http(s) URL"
	case "hostname_port":
		return "must be host:port"
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	default:
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}
