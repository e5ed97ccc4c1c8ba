package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cresceapp/cresce/internal/models"
)

// MaxChildAgeYears is the plausible ceiling for a child's age during
// onboarding; birth dates further in the past are rejected.
const MaxChildAgeYears = 12

// Onboarding prompts per step.
const (
	promptAskName      = "Qual é o nome do seu bebê?"
	promptAskGender    = "E o sexo? Pode responder \"menino\" ou \"menina\"."
	promptAskBirthdate = "Quando seu bebê nasceu? Pode escrever a data, por exemplo 10/01/2024."
	promptCompleted    = "Prontinho! Agora me conta: sobre quem você quer conversar?"
)

// genderAliases maps accepted gender answers to the canonical stored value.
var genderAliases = map[string]string{
	"male": "male", "masculino": "male", "menino": "male", "boy": "male", "m": "male", "homem": "male",
	"female": "female", "feminino": "female", "feminina": "female", "menina": "female", "girl": "female", "f": "female", "mulher": "female",
}

// birthdateLayouts are the accepted date formats, tried in order.
// Day-first layouts come before month-first: the product's audience writes
// dates as DD/MM/YYYY.
var birthdateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"2/1/2006",
	"January 2, 2006",
	"2 January 2006",
}

// StepResult is the outcome of resolving one onboarding answer.
// A retry is a normal result, not an error: the step does not advance and
// Reason explains what to fix.
type StepResult struct {
	Retry     bool                  `json:"retry"`
	Reason    string                `json:"reason,omitempty"`
	NextStep  models.OnboardingStep `json:"next_step,omitempty"`
	Prompt    string                `json:"prompt,omitempty"`
	Name      string                `json:"-"`
	Gender    string                `json:"-"`
	Birthdate time.Time             `json:"-"`
}

// ResolveStep parses a free-text answer for the given onboarding step.
// Pure function: it never touches stored state. Malformed input never
// advances the step.
func ResolveStep(step models.OnboardingStep, rawText string) (StepResult, error) {
	text := strings.TrimSpace(rawText)
	switch step {
	case models.StepAskingName:
		if text == "" {
			return StepResult{Retry: true, Reason: "name cannot be empty", Prompt: promptAskName}, nil
		}
		if len(text) > models.MaxBabyNameLength {
			return StepResult{Retry: true, Reason: "name is too long", Prompt: promptAskName}, nil
		}
		return StepResult{NextStep: models.StepAskingGender, Prompt: promptAskGender, Name: text}, nil

	case models.StepAskingGender:
		gender, ok := genderAliases[strings.ToLower(text)]
		if !ok {
			return StepResult{Retry: true, Reason: fmt.Sprintf("could not understand %q as a gender", text), Prompt: promptAskGender}, nil
		}
		return StepResult{NextStep: models.StepAskingBirthdate, Prompt: promptAskBirthdate, Gender: gender}, nil

	case models.StepAskingBirthdate:
		birthdate, ok := parseBirthdate(text)
		if !ok {
			return StepResult{Retry: true, Reason: fmt.Sprintf("could not understand %q as a date", text), Prompt: promptAskBirthdate}, nil
		}
		now := time.Now()
		if birthdate.After(now) {
			return StepResult{Retry: true, Reason: "birth date cannot be in the future", Prompt: promptAskBirthdate}, nil
		}
		if birthdate.Before(now.AddDate(-MaxChildAgeYears, 0, 0)) {
			return StepResult{Retry: true, Reason: fmt.Sprintf("birth date is more than %d years ago", MaxChildAgeYears), Prompt: promptAskBirthdate}, nil
		}
		return StepResult{NextStep: models.StepComplete, Prompt: promptCompleted, Birthdate: birthdate}, nil

	default:
		return StepResult{}, fmt.Errorf("%w: %q", models.ErrInvalidStep, step)
	}
}

// parseBirthdate tries the accepted layouts in order.
func parseBirthdate(text string) (time.Time, bool) {
	for _, layout := range birthdateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ageInWeeks computes full weeks elapsed since birth.
func ageInWeeks(birthdate, now time.Time) int {
	if now.Before(birthdate) {
		return 0
	}
	return int(now.Sub(birthdate).Hours() / (24 * 7))
}

// ageInMonths computes full calendar months elapsed since birth.
func ageInMonths(birthdate, now time.Time) int {
	if now.Before(birthdate) {
		return 0
	}
	months := (now.Year()-birthdate.Year())*12 + int(now.Month()) - int(birthdate.Month())
	if now.Day() < birthdate.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// OnboardingResult is the outcome of processing one onboarding answer for a
// stored user: a retry, an advance to the next step's prompt, or completion
// with the collected baby data and the next outer state.
type OnboardingResult struct {
	Retry     bool                  `json:"retry"`
	Reason    string                `json:"reason,omitempty"`
	Step      models.OnboardingStep `json:"step"`
	Prompt    string                `json:"prompt"`
	Completed bool                  `json:"completed"`
	Baby      *models.BabyData      `json:"baby,omitempty"`
	NextState models.StateType      `json:"next_state,omitempty"`
}

// ProcessOnboarding feeds one free-text answer to the onboarding sub-machine.
// The user must be in the ONBOARDING state. On reaching COMPLETE the outer
// machine is driven from ONBOARDING to CONTEXT_SELECTION and onboarding_step
// is cleared.
func (e *Engine) ProcessOnboarding(ctx context.Context, userID, rawText string) (*OnboardingResult, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	unlock := e.lockUser(userID)
	defer unlock()

	cs, err := e.store.GetConversationState(userID)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, userID)
	}
	if cs.State != models.StateOnboarding {
		return nil, fmt.Errorf("%w: current state is %s", models.ErrOnboardingClosed, cs.State)
	}

	res, err := ResolveStep(cs.OnboardingStep, rawText)
	if err != nil {
		return nil, err
	}
	if res.Retry {
		slog.Debug("Engine.ProcessOnboarding: retry", "user_id", userID, "step", cs.OnboardingStep, "reason", res.Reason)
		return &OnboardingResult{Retry: true, Reason: res.Reason, Step: cs.OnboardingStep, Prompt: res.Prompt}, nil
	}

	// Persist the collected field and advance the step.
	switch cs.OnboardingStep {
	case models.StepAskingName:
		cs.BabyName = res.Name
	case models.StepAskingGender:
		cs.BabyGender = res.Gender
	case models.StepAskingBirthdate:
		bd := res.Birthdate
		cs.BabyBirthdate = &bd
	}

	if res.NextStep == models.StepComplete {
		now := time.Now()
		baby := &models.BabyData{
			Name:      cs.BabyName,
			Gender:    cs.BabyGender,
			Birthdate: *cs.BabyBirthdate,
			AgeWeeks:  ageInWeeks(*cs.BabyBirthdate, now),
			AgeMonths: ageInMonths(*cs.BabyBirthdate, now),
		}
		cs.OnboardingStep = ""
		cs.State = models.StateContextSelection
		cs.ActiveContext = ""
		cs.LastInteractionAt = now
		if err := cs.Validate(); err != nil {
			return nil, err
		}
		if err := e.store.SaveConversationState(*cs); err != nil {
			return nil, err
		}
		slog.Info("Engine.ProcessOnboarding: completed", "user_id", userID, "baby_name", baby.Name, "age_weeks", baby.AgeWeeks)
		return &OnboardingResult{
			Step:      models.StepComplete,
			Prompt:    res.Prompt,
			Completed: true,
			Baby:      baby,
			NextState: models.StateContextSelection,
		}, nil
	}

	cs.OnboardingStep = res.NextStep
	cs.LastInteractionAt = time.Now()
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	if err := e.store.SaveConversationState(*cs); err != nil {
		return nil, err
	}
	slog.Debug("Engine.ProcessOnboarding: advanced", "user_id", userID, "next_step", res.NextStep)
	return &OnboardingResult{Step: res.NextStep, Prompt: res.Prompt}, nil
}
