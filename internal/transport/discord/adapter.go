// Package discord implements transport.Adapter on top of discordgo.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	logx "dailybot/pkg/logx"
)

type Config struct {
	Token string
}

type Adapter struct {
	session *discordgo.Session
	log     logx.Logger

	// DM channels are created once per user and cached; Discord rate-limits
	// channel creation far harder than message sends.
	dmMu sync.Mutex
	dms  map[int64]string
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages

	a := &Adapter{session: s, log: log, dms: map[int64]string{}}
	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("discord connect: %w", err)
	}
	log.Info("discord gateway connected")
	return a, nil
}

func (a *Adapter) SendDM(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch, err := a.dmChannel(userID)
	if err != nil {
		return fmt.Errorf("dm channel for %d: %w", userID, err)
	}
	if _, err := a.session.ChannelMessageSend(ch, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm to %d: %w", userID, err)
	}
	return nil
}

func (a *Adapter) SendChannel(ctx context.Context, channelID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch := strconv.FormatInt(channelID, 10)
	if _, err := a.session.ChannelMessageSend(ch, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send to channel %d: %w", channelID, err)
	}
	return nil
}

func (a *Adapter) Close() error {
	return a.session.Close()
}

func (a *Adapter) dmChannel(userID int64) (string, error) {
	a.dmMu.Lock()
	defer a.dmMu.Unlock()
	if ch, ok := a.dms[userID]; ok {
		return ch, nil
	}
	ch, err := a.session.UserChannelCreate(strconv.FormatInt(userID, 10))
	if err != nil {
		return "", err
	}
	a.dms[userID] = ch.ID
	return ch.ID, nil
}
