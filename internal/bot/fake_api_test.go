package bot_test

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeAPI struct {
	mu      sync.Mutex
	me      tgbotapi.User
	meErr   error
	meBlock chan struct{}
	updates chan tgbotapi.Update
	sent    []tgbotapi.MessageConfig
	sentC   chan tgbotapi.MessageConfig
	stopped bool
	panicOn bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		me:      tgbotapi.User{ID: 4242, UserName: "holdtrack_bot", IsBot: true},
		updates: make(chan tgbotapi.Update),
		sentC:   make(chan tgbotapi.MessageConfig, 16),
	}
}

func (f *fakeAPI) GetMe() (tgbotapi.User, error) {
	if f.meBlock != nil {
		<-f.meBlock
	}
	return f.me, f.meErr
}

func (f *fakeAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	if f.panicOn {
		panic("poll exploded")
	}
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if ok {
		f.mu.Lock()
		f.sent = append(f.sent, msg)
		f.mu.Unlock()
		f.sentC <- msg
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func command(chatID, userID int64, text string) tgbotapi.Update {
	n := len(text)
	for i, r := range text {
		if r == ' ' {
			n = i
			break
		}
	}
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 7,
			From:      &tgbotapi.User{ID: userID},
			Chat:      &tgbotapi.Chat{ID: chatID},
			Text:      text,
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}},
		},
	}
}
