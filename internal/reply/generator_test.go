package reply

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/wa-crm-bot/internal/models"
	"github.com/xaenox/wa-crm-bot/internal/storage"
	"go.uber.org/zap/zaptest"
)

type fakeLLM struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

type fixedDetector string

func (d fixedDetector) Detect(string) string { return string(d) }

func TestGenerate_BuildsTranscriptAndSavesTurn(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	client := &fakeLLM{reply: "  Sure, what kind of website?  "}
	g := NewGenerator(store, client, fixedDetector("en"), Options{}, zaptest.NewLogger(t))

	user, err := storage.GetOrCreateUser(ctx, store, "1555000", "Ana")
	require.NoError(t, err)
	require.NoError(t, store.SaveTurn(ctx, user.ID, "Hi", "Hello Ana"))

	reply, err := g.Generate(ctx, "I need a website", "1555000", "Ana")
	require.NoError(t, err)
	assert.Equal(t, "Sure, what kind of website?", reply)

	require.Len(t, client.prompts, 1)
	assert.Equal(t, "\nUser: Hi\nBot: Hello Ana\nUser: I need a website\nBot:", client.prompts[0])

	history, err := store.LoadHistory(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, models.Turn{Role: models.RoleUser, Text: "I need a website"}, history[2])
	assert.Equal(t, models.Turn{Role: models.RoleAssistant, Text: "Sure, what kind of website?"}, history[3])
}

func TestGenerate_CreatesUnknownUser(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	g := NewGenerator(store, &fakeLLM{reply: "ok"}, fixedDetector("en"), Options{}, zaptest.NewLogger(t))

	_, err := g.Generate(ctx, "hi", "777", "Bob")
	require.NoError(t, err)

	user, ok, err := store.FindUserByPhone(ctx, "777")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Bob", user.Name)
	assert.Len(t, store.Messages(user.ID), 2)
}

// The language directive is computed but not sent unless explicitly enabled.
func TestGenerate_LanguageDirectiveOmittedByDefault(t *testing.T) {
	client := &fakeLLM{reply: "Привет"}
	g := NewGenerator(storage.NewMemoryStorage(), client, fixedDetector("ru"), Options{}, zaptest.NewLogger(t))

	_, err := g.Generate(context.Background(), "Привет", "1", "Ivan")
	require.NoError(t, err)
	assert.NotContains(t, client.prompts[0], LanguageDirective("ru"))
}

func TestGenerate_LanguageDirectiveWhenEnabled(t *testing.T) {
	client := &fakeLLM{reply: "Сәлем"}
	opts := Options{SystemPrompt: "You are a sales assistant.", IncludeLanguageDirective: true}
	g := NewGenerator(storage.NewMemoryStorage(), client, fixedDetector("kk"), opts, zaptest.NewLogger(t))

	_, err := g.Generate(context.Background(), "Сәлем", "1", "Aidos")
	require.NoError(t, err)
	assert.Equal(t, "You are a sales assistant.\nЖауапты қазақ тілінде бер.\nUser: Сәлем\nBot:", client.prompts[0])
}

func TestGenerate_RefusalReplacedWithApology(t *testing.T) {
	for _, resp := range []string{
		"",
		"   ",
		"К сожалению, Я НЕ МОГУ ПОМОЧЬ с этим.",
		"Это вне моей компетенции",
	} {
		store := storage.NewMemoryStorage()
		g := NewGenerator(store, &fakeLLM{reply: resp}, fixedDetector("ru"), Options{}, zaptest.NewLogger(t))

		reply, err := g.Generate(context.Background(), "Сколько стоит пицца?", "1", "Ivan")
		require.NoError(t, err)
		assert.Equal(t, Apology, reply)
	}
}

func TestGenerate_ModelErrorPropagatesWithoutSaving(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	g := NewGenerator(store, &fakeLLM{err: errors.New("deadline exceeded")}, fixedDetector("en"), Options{}, zaptest.NewLogger(t))

	_, err := g.Generate(ctx, "hi", "1", "Ana")
	require.Error(t, err)

	user, ok, err := store.FindUserByPhone(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, store.Messages(user.ID))
}

func TestLanguageDirective(t *testing.T) {
	assert.Equal(t, "Отвечай на русском языке.", LanguageDirective("ru"))
	assert.Equal(t, "Жауапты қазақ тілінде бер.", LanguageDirective("kk"))
	assert.Equal(t, "Reply in English.", LanguageDirective("es"))
	assert.Equal(t, "Reply in English.", LanguageDirective(""))
}
