package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/veranemoloko/download-panel/internal/domain"
	errpkg "github.com/veranemoloko/download-panel/internal/errors"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("source_url", validateSourceURL)
	_ = validate.RegisterValidation("proxy_port", validateProxyPort)
	validate.RegisterStructValidation(validateProxySettings, domain.ProxySettings{})
}

// ValidateCreateJob checks a job submission before it is sent to the backend.
func ValidateCreateJob(req domain.CreateJobRequest) error {
	req.URL = strings.TrimSpace(req.URL)
	req.Store = strings.TrimSpace(req.Store)
	req.PathTemplate = strings.TrimSpace(req.PathTemplate)
	return check(validate.Struct(req))
}

// ValidateSettings checks proxy and download settings before they are saved.
func ValidateSettings(settings domain.AppSettings) error {
	return check(validate.Struct(settings))
}

// ValidateBaseURL checks a backend endpoint address taken from configuration.
func ValidateBaseURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL %q: missing host", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("invalid URL %q: scheme must be one of %v", raw, schemes)
}

func check(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", errpkg.ErrValidation, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", errpkg.ErrValidation, strings.Join(msgs, "; "))
}

func validateSourceURL(fl validator.FieldLevel) bool {
	urlStr := strings.TrimSpace(fl.Field().String())

	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	if u.Host == "" {
		return false
	}

	host := u.Hostname()

	forbiddenHosts := []string{
		"localhost",
		"127.0.0.1",
		"::1",
		"0.0.0.0",
		"169.254.169.254",
	}

	for _, forbidden := range forbiddenHosts {
		if strings.EqualFold(host, forbidden) {
			return false
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() {
			return false
		}
	}

	return true
}

// Port 0 means "unset"; anything else must be a valid TCP port.
func validateProxyPort(fl validator.FieldLevel) bool {
	port := fl.Field().Int()
	return port >= 0 && port <= 65535
}

func validateProxySettings(sl validator.StructLevel) {
	proxy := sl.Current().Interface().(domain.ProxySettings)
	if !proxy.Enabled {
		return
	}
	if strings.TrimSpace(proxy.Host) == "" {
		sl.ReportError(proxy.Host, "Host", "host", "required_when_enabled", "")
	}
	if proxy.Port == 0 {
		sl.ReportError(proxy.Port, "Port", "port", "required_when_enabled", "")
	}
}
