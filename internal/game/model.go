package game

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	StartingCash = 10_000.0

	MaxHoldings      = 10
	MinStartHoldings = 4

	// PositionCap is the largest share of total value a single holding may
	// reach through a purchase.
	PositionCap = 0.25

	GameOverThreshold = 20.0

	LeaderboardCapacity = 100

	// InvestedTarget is the advisory minimum invested percent once active.
	InvestedTarget = 97.0
)

var (
	ErrValidationRejected     = errors.New("trade rejected")
	ErrGatewayUnavailable     = errors.New("quote gateway unavailable")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrPreconditionFailed     = errors.New("precondition failed")

	ErrHoldingNotFound  = errors.New("holding not found")
	ErrQuoteUnavailable = errors.New("no price available for symbol")
	ErrSessionClosed    = errors.New("session closed")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrInvalidSymbol    = errors.New("symbol must be 1-10 uppercase letters, digits, dots or dashes")
	ErrInvalidProfile   = errors.New("invalid player profile")
)

var (
	symbolRE   = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)
	playerIDRE = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

func ValidateSymbol(symbol string) error {
	if !symbolRE.MatchString(strings.TrimSpace(symbol)) {
		return ErrInvalidSymbol
	}
	return nil
}

func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizePlayerID strips phone formatting characters and checks the result
// looks like a phone number.
func NormalizePlayerID(raw string) (string, error) {
	id := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(strings.TrimSpace(raw))
	if !playerIDRE.MatchString(id) {
		return "", fmt.Errorf("%w: player id %q is not phone-like", ErrInvalidProfile, raw)
	}
	return id, nil
}

type RiskTolerance string

const (
	RiskLow    RiskTolerance = "low"
	RiskMedium RiskTolerance = "medium"
	RiskHigh   RiskTolerance = "high"
)

func ParseRiskTolerance(v string) (RiskTolerance, error) {
	switch r := RiskTolerance(strings.ToLower(strings.TrimSpace(v))); r {
	case RiskLow, RiskMedium, RiskHigh:
		return r, nil
	case "":
		return RiskMedium, nil
	default:
		return "", fmt.Errorf("%w: risk tolerance must be low, medium or high", ErrInvalidProfile)
	}
}

type ReturnGoal string

const (
	GoalShort ReturnGoal = "short"
	GoalLong  ReturnGoal = "long"
)

func ParseReturnGoal(v string) (ReturnGoal, error) {
	switch g := ReturnGoal(strings.ToLower(strings.TrimSpace(v))); g {
	case GoalShort, GoalLong:
		return g, nil
	case "":
		return GoalLong, nil
	default:
		return "", fmt.Errorf("%w: return goal must be short or long", ErrInvalidProfile)
	}
}

type GameState string

const (
	StateNotStarted GameState = "not_started"
	StateActive     GameState = "active"
	StateGameOver   GameState = "game_over"
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
