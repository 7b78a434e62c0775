package telegram

import (
	"chargepoint/internal"
	"chargepoint/station"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// Station is the read-only view the bot reports on.
type Station interface {
	Connection() station.ConnectionStatus
	Connectors() []station.ConnectorSnapshot
	Firmware() station.FirmwareSnapshot
}

// TgBot implements EventHandler
type TgBot struct {
	api     *tgbotapi.BotAPI
	chatId  int64
	station Station
	event   chan MessageContent
	send    chan MessageContent
}

type MessageContent struct {
	ChatID int64
	Text   string
}

func NewBot(apiKey string, chatId int64) (*TgBot, error) {
	tgBot := &TgBot{
		chatId: chatId,
		event:  make(chan MessageContent, 100),
		send:   make(chan MessageContent, 100),
	}
	api, err := tgbotapi.NewBotAPI(apiKey)
	if err != nil {
		return nil, err
	}
	tgBot.api = api
	return tgBot, nil
}

// SetStation attach the station view used by the /status command
func (b *TgBot) SetStation(observed Station) {
	b.station = observed
}

func (b *TgBot) Start() {
	go b.sendPump()
	go b.eventPump()
	go b.updatesPump()
}

// Start listening for updates
func (b *TgBot) updatesPump() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := b.api.GetUpdatesChan(u)
	if err != nil {
		log.Printf("bot: error getting updates: %v", err)
		return
	}
	for update := range updates {
		if update.Message == nil {
			continue
		}
		if !update.Message.IsCommand() {
			continue
		}
		switch update.Message.Command() {
		case "start":
			msg := fmt.Sprintf("Hello *%v*, station events are delivered here", update.Message.From.UserName)
			b.send <- MessageContent{ChatID: update.Message.Chat.ID, Text: msg}
		case "status":
			b.send <- MessageContent{ChatID: update.Message.Chat.ID, Text: b.composeStatusMessage()}
		}
	}
}

// eventPump sending events to the configured chat
func (b *TgBot) eventPump() {
	for {
		if event, ok := <-b.event; ok {
			b.sendMessage(b.chatId, event.Text)
		}
	}
}

// sendPump sending messages to users
func (b *TgBot) sendPump() {
	for {
		if event, ok := <-b.send; ok {
			b.sendMessage(event.ChatID, event.Text)
		}
	}
}

// sendMessage common routine to send a message via bot API
func (b *TgBot) sendMessage(id int64, text string) {
	if id == 0 {
		return
	}
	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = "MarkdownV2"
	_, err := b.api.Send(msg)
	if err != nil {
		// maybe error was while parsing, so we can send a message about this error
		msg = tgbotapi.NewMessage(id, fmt.Sprintf("Error: %v", err))
		_, err = b.api.Send(msg)
		if err != nil {
			log.Printf("bot: error sending message: %v", err)
		}
	}
}

func (b *TgBot) OnStatusNotification(event *internal.EventMessage) {
	if event.ConnectorId == 0 {
		// station-level status changes are not interesting as chat messages
		return
	}
	msg := fmt.Sprintf("*%v*: Connector %v: `%v`\n", event.StationId, event.ConnectorId, event.Status)
	if event.Info != "" {
		msg += fmt.Sprintf("%v\n", sanitize(event.Info))
	}
	b.event <- MessageContent{Text: msg}
}

func (b *TgBot) OnTransactionStart(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: Connector %v: `%v`\n", event.StationId, event.ConnectorId, event.Status)
	msg += fmt.Sprintf("Transaction ID: %v START\n", event.TransactionId)
	msg += fmt.Sprintf("ID Tag: %v\n", event.IdTag)
	b.event <- MessageContent{Text: msg}
}

func (b *TgBot) OnTransactionStop(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: Connector %v: `%v`\n", event.StationId, event.ConnectorId, event.Status)
	msg += fmt.Sprintf("Transaction ID: %v STOP\n", event.TransactionId)
	msg += fmt.Sprintf("ID Tag: %v\n", event.IdTag)
	msg += fmt.Sprintf("Info: %v\n", sanitize(event.Info))
	b.event <- MessageContent{Text: msg}
}

func (b *TgBot) OnFirmwareStatus(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: firmware `%v`\n", event.StationId, event.Status)
	if event.Info != "" {
		msg += fmt.Sprintf("Location: %v\n", sanitize(event.Info))
	}
	b.event <- MessageContent{Text: msg}
}

// compose status message
func (b *TgBot) composeStatusMessage() string {
	msg := "Status info:\n\n"
	if b.station == nil {
		return msg
	}
	msg += fmt.Sprintf("Connection: `%v`\n", b.station.Connection())
	for _, connector := range b.station.Connectors() {
		msg += fmt.Sprintf("Connector %v: `%v`\n", connector.Id, connector.Status)
		if connector.Transaction != nil {
			msg += fmt.Sprintf("Transaction ID: %v, meter %v\n",
				connector.Transaction.Id, connector.Transaction.CurrentMeter)
		}
	}
	msg += fmt.Sprintf("Firmware: `%v`\n", b.station.Firmware().Status)
	return msg
}

func sanitize(input string) string {
	// Define a list of reserved characters that need to be escaped
	reservedChars := "\\`*_{}[]()#+-.!|"

	sanitized := ""
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized += "\\" + string(char)
		} else {
			sanitized += string(char)
		}
	}
	return sanitized
}
