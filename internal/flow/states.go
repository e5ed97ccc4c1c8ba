// Package flow implements the conversation orchestration engine: the outer
// state machine, the onboarding sub-machine, the button resolver, the context
// aggregator, the feedback trigger heuristic, and the session summarizer.
package flow

import (
	"github.com/cresceapp/cresce/internal/models"
)

// defaultTransitions is the static allowed-successor table. A stored
// StateConfig with a non-empty AllowedTransitions set overrides the entry
// for its state. EXIT has no successors: re-entry after EXIT re-initializes
// the record at ENTRY with a fresh correlation ID instead of transitioning.
var defaultTransitions = map[models.StateType][]models.StateType{
	models.StateEntry: {
		models.StateOnboarding, models.StateContextSelection, models.StateSupport, models.StateExit,
	},
	models.StateOnboarding: {
		models.StateContextSelection, models.StateSupport, models.StateExit,
	},
	models.StateContextSelection: {
		models.StateFreeConversation, models.StateSupport, models.StateExit,
	},
	models.StateFreeConversation: {
		models.StateContentFlow, models.StateQuizFlow, models.StateLogFlow, models.StateSupport,
		models.StateContextSelection, models.StateFeedback, models.StatePause, models.StateExit,
	},
	models.StateContentFlow: {
		models.StateFreeConversation, models.StateQuizFlow, models.StateFeedback, models.StatePause, models.StateExit,
	},
	models.StateQuizFlow: {
		models.StateFreeConversation, models.StateContentFlow, models.StateFeedback, models.StatePause, models.StateExit,
	},
	models.StateLogFlow: {
		models.StateFreeConversation, models.StateFeedback, models.StatePause, models.StateExit,
	},
	models.StateSupport: {
		models.StateFreeConversation, models.StateContextSelection, models.StatePause, models.StateExit,
	},
	models.StateFeedback: {
		models.StateFreeConversation, models.StateContextSelection, models.StatePause, models.StateExit,
	},
	models.StatePause: {
		models.StateFreeConversation, models.StateContextSelection, models.StateExit,
	},
	models.StateExit: {},
}

// defaultConfigs carries the compiled-in message template and buttons per
// state, used when no stored StateConfig overrides them.
var defaultConfigs = map[models.StateType]models.StateConfig{
	models.StateEntry: {
		State:           models.StateEntry,
		MessageTemplate: "Oi! Eu sou a {assistant_name}, sua companheira na jornada de desenvolvimento do seu bebê. Vamos começar?",
		Buttons: []models.ButtonConfig{
			{ID: "start_onboarding", Label: "Começar"},
			{ID: "talk_support", Label: "Falar com suporte"},
		},
	},
	models.StateOnboarding: {
		State:           models.StateOnboarding,
		MessageTemplate: "Qual é o nome do seu bebê?",
	},
	models.StateContextSelection: {
		State:           models.StateContextSelection,
		MessageTemplate: "Sobre quem você quer conversar agora?",
		Buttons: []models.ButtonConfig{
			{ID: "ctx_child", Label: "Sobre o bebê"},
			{ID: "ctx_mother", Label: "Sobre você"},
		},
	},
	models.StateFreeConversation: {
		State:           models.StateFreeConversation,
		MessageTemplate: "Pode me contar o que está acontecendo. Estou aqui para ajudar!",
		Buttons: []models.ButtonConfig{
			{ID: "open_content", Label: "Conteúdo da semana"},
			{ID: "open_quiz", Label: "Quiz de desenvolvimento"},
			{ID: "open_log", Label: "Registrar no diário"},
			{ID: "change_context", Label: "Mudar de assunto"},
		},
	},
	models.StateContentFlow: {
		State:           models.StateContentFlow,
		MessageTemplate: "Aqui está o conteúdo da semana {journey_week}.",
		Buttons: []models.ButtonConfig{
			{ID: "back_to_chat", Label: "Voltar à conversa"},
			{ID: "open_quiz", Label: "Fazer o quiz"},
		},
	},
	models.StateQuizFlow: {
		State:           models.StateQuizFlow,
		MessageTemplate: "Vamos ao quiz da semana {journey_week}!",
		Buttons: []models.ButtonConfig{
			{ID: "back_to_chat", Label: "Voltar à conversa"},
		},
	},
	models.StateLogFlow: {
		State:           models.StateLogFlow,
		MessageTemplate: "O que você quer registrar no diário de hoje?",
		Buttons: []models.ButtonConfig{
			{ID: "back_to_chat", Label: "Voltar à conversa"},
		},
	},
	models.StateSupport: {
		State:           models.StateSupport,
		MessageTemplate: "Nossa equipe de suporte vai falar com você em breve.",
		Buttons: []models.ButtonConfig{
			{ID: "back_to_chat", Label: "Voltar à conversa"},
		},
	},
	models.StateFeedback: {
		State:           models.StateFeedback,
		MessageTemplate: "De 1 a 5, como está sendo a sua experiência?",
		Buttons: []models.ButtonConfig{
			{ID: "feedback_1", Label: "⭐"},
			{ID: "feedback_2", Label: "⭐⭐"},
			{ID: "feedback_3", Label: "⭐⭐⭐"},
			{ID: "feedback_4", Label: "⭐⭐⭐⭐"},
			{ID: "feedback_5", Label: "⭐⭐⭐⭐⭐"},
		},
	},
	models.StatePause: {
		State:           models.StatePause,
		MessageTemplate: "Tudo bem, vou ficar quietinha. Me chame quando quiser conversar.",
		Buttons: []models.ButtonConfig{
			{ID: "resume", Label: "Voltar a conversar"},
		},
	},
	models.StateExit: {
		State:           models.StateExit,
		MessageTemplate: "Foi um prazer conversar com você. Até a próxima!",
	},
}

// defaultConfigFor returns the compiled-in config for a state, including the
// static transition table.
func defaultConfigFor(state models.StateType) models.StateConfig {
	cfg := defaultConfigs[state]
	cfg.State = state
	cfg.AllowedTransitions = defaultTransitions[state]
	return cfg
}
