package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput возвращается при некорректном запросе; вызывающий может исправить ввод.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidAmount уточняет ErrInvalidInput для размера ставки.
	ErrInvalidAmount = fmt.Errorf("%w: invalid amount", ErrInvalidInput)
	// ErrNotFound возвращается для неизвестного идентификатора.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientBalance возвращается, если резервируемая сумма превышает баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDuplicateStake возвращается, если у пользователя уже есть незакрытая ставка на утверждение.
	ErrDuplicateStake = errors.New("duplicate stake")

	ErrClaimNotOpen     = errors.New("claim is not open")
	ErrClaimFinalized   = errors.New("claim is finalized")
	ErrAlreadyResolving = errors.New("claim is already resolving")
	// ErrInvalidTransition возвращается при попытке перейти в Resolved, минуя Resolving.
	ErrInvalidTransition = errors.New("invalid claim state transition")

	// ErrUnknownStake и ErrAlreadySettled означают ошибку в логике расчёта или гонку.
	ErrUnknownStake   = errors.New("unknown stake")
	ErrAlreadySettled = errors.New("stake already settled")

	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// IsInconsistency сообщает, что ошибка указывает на нарушение внутренней согласованности.
func IsInconsistency(err error) bool {
	return errors.Is(err, ErrUnknownStake) || errors.Is(err, ErrAlreadySettled)
}
