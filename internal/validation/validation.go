// Package validation содержит функции валидации входных данных.
package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/mmeshcher/truthstake/internal/model"
)

const (
	MaxTitleLength = 200
	MaxBodyLength  = 5000
	MaxLoginLength = 64
)

// NormalizeClaimDraft обрезает пробелы и проверяет поля утверждения.
// Заголовок и текст обязательны. Изображение задаётся http(s)-ссылкой,
// источник задаётся названием издания или http(s)-ссылкой.
func NormalizeClaimDraft(d model.ClaimDraft) (model.ClaimDraft, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.Body = strings.TrimSpace(d.Body)
	d.Source = strings.TrimSpace(d.Source)
	d.ImageURL = strings.TrimSpace(d.ImageURL)

	if d.Title == "" {
		return d, fmt.Errorf("%w: title is empty", model.ErrInvalidInput)
	}
	if d.Body == "" {
		return d, fmt.Errorf("%w: body is empty", model.ErrInvalidInput)
	}
	if utf8.RuneCountInString(d.Title) > MaxTitleLength {
		return d, fmt.Errorf("%w: title longer than %d characters", model.ErrInvalidInput, MaxTitleLength)
	}
	if utf8.RuneCountInString(d.Body) > MaxBodyLength {
		return d, fmt.Errorf("%w: body longer than %d characters", model.ErrInvalidInput, MaxBodyLength)
	}
	if d.ImageURL != "" && !IsHTTPURL(d.ImageURL) {
		return d, fmt.Errorf("%w: image url %q is not an http(s) url", model.ErrInvalidInput, d.ImageURL)
	}
	if strings.Contains(d.Source, "://") && !IsHTTPURL(d.Source) {
		return d, fmt.Errorf("%w: source %q is not an http(s) url", model.ErrInvalidInput, d.Source)
	}

	return d, nil
}

// IsHTTPURL проверяет, что строка является абсолютной ссылкой со схемой http или https.
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// CheckStakeAmount проверяет размер ставки. max <= 0 означает отсутствие верхней границы.
func CheckStakeAmount(amount, min, max int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", model.ErrInvalidAmount, amount)
	}
	if amount < min {
		return fmt.Errorf("%w: amount %d below minimum %d", model.ErrInvalidAmount, amount, min)
	}
	if max > 0 && amount > max {
		return fmt.Errorf("%w: amount %d above maximum %d", model.ErrInvalidAmount, amount, max)
	}
	return nil
}

// IsValidLogin проверяет логин: непустой, без пробелов, не длиннее MaxLoginLength.
func IsValidLogin(login string) bool {
	if login == "" || utf8.RuneCountInString(login) > MaxLoginLength {
		return false
	}
	return !strings.ContainsAny(login, " \t\r\n")
}
