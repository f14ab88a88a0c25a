// Package telegram serves files stored as messages in a Telegram channel.
// Each Client is one bot account; the handle is the message id.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/zero5yt/StreamixBot2.0/pkg/logging"
	"github.com/zero5yt/StreamixBot2.0/pkg/remote"
)

const (
	// upload.getFile accepts at most 1MiB in multiples of 4KiB.
	MaxChunkSize   = 1 << 20
	chunkAlignment = 4096

	maxFloodWaits = 3

	botChannelPrefix = -1000000000000
)

var ErrNotStarted = errors.New("telegram client is not running")

type Options struct {
	AppID    int
	AppHash  string
	BotToken string
	// Channel is the storage channel id, either bare or in the -100... form
	// bots see it as.
	Channel int64
}

type Client struct {
	name    string
	tc      *telegram.Client
	api     *tg.Client
	channel *tg.InputChannel
	homeDC  int

	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

var (
	_ remote.Client  = &Client{}
	_ remote.Session = &session{}
)

// ValidateChunkSize checks that size can be sent as an upload.getFile limit.
// A non-precise request must not cross a 1 MiB boundary, so the size has to
// divide MaxChunkSize as well as be aligned.
func ValidateChunkSize(size int64) error {
	if size <= 0 || size > MaxChunkSize || size%chunkAlignment != 0 || MaxChunkSize%size != 0 {
		return fmt.Errorf("telegram chunk size must be a multiple of %d that divides %d, got %d", chunkAlignment, MaxChunkSize, size)
	}
	return nil
}

// ChannelID converts a -100 prefixed bot API channel id to the bare MTProto id.
func ChannelID(id int64) int64 {
	if id < botChannelPrefix {
		return -id + botChannelPrefix
	}
	if id < 0 {
		return -id
	}
	return id
}

// Start connects, authorizes the bot and resolves the storage channel. ctx
// bounds startup only; once started the connection stays up until Close.
func Start(ctx context.Context, name string, opts Options) (*Client, error) {
	logger := logging.GetLogger()
	c := &Client{
		name: name,
		tc: telegram.NewClient(opts.AppID, opts.AppHash, telegram.Options{
			NoUpdates: true,
		}),
		done: make(chan error, 1),
	}
	runCtx, cancel := detach(ctx)
	c.cancel = cancel

	ready := make(chan error, 1)
	go func() {
		c.done <- c.tc.Run(runCtx, func(ctx context.Context) error {
			if _, err := c.tc.Auth().Bot(ctx, opts.BotToken); err != nil {
				ready <- fmt.Errorf("authorizing bot: %w", err)
				return err
			}
			c.api = c.tc.API()
			c.homeDC = c.tc.Config().ThisDC
			channel, err := c.resolveChannel(ctx, ChannelID(opts.Channel))
			if err != nil {
				ready <- err
				return err
			}
			c.channel = channel
			ready <- nil
			<-ctx.Done()
			return nil
		})
	}()

	select {
	case err := <-ready:
		if err != nil {
			c.Close()
			return nil, err
		}
	case err := <-c.done:
		cancel()
		if err == nil {
			err = ErrNotStarted
		}
		return nil, fmt.Errorf("starting telegram client %s: %w", name, err)
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}
	logger.Info().Str("client", name).Int("dc", c.homeDC).Msg("Telegram client started")
	return c, nil
}

// detach keeps ctx's values but is cancelled only by the returned func.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(context.WithoutCancel(ctx))
}

func (c *Client) resolveChannel(ctx context.Context, id int64) (*tg.InputChannel, error) {
	res, err := c.api.ChannelsGetChannels(ctx, []tg.InputChannelClass{&tg.InputChannel{ChannelID: id}})
	if err != nil {
		return nil, fmt.Errorf("resolving storage channel %d: %w", id, err)
	}
	for _, chat := range res.GetChats() {
		if ch, ok := chat.(*tg.Channel); ok && ch.ID == id {
			return ch.AsInput(), nil
		}
	}
	return nil, fmt.Errorf("storage channel %d is not accessible", id)
}

// Close disconnects the client and waits for it to stop.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()
		err = <-c.done
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	})
	return err
}

func (c *Client) Lookup(ctx context.Context, h remote.Handle) (remote.MediaRef, error) {
	res, err := c.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
		Channel: c.channel,
		ID:      []tg.InputMessageClass{&tg.InputMessageID{ID: int(h)}},
	})
	if tgerr.Is(err, "MESSAGE_ID_INVALID", "CHANNEL_INVALID") {
		return remote.MediaRef{}, fmt.Errorf("%w: %d", remote.ErrObjectNotFound, h)
	}
	if err != nil {
		return remote.MediaRef{}, fmt.Errorf("fetching message %d: %w", h, err)
	}
	modified, ok := res.AsModified()
	if !ok {
		return remote.MediaRef{}, fmt.Errorf("%w: %d", remote.ErrObjectNotFound, h)
	}
	for _, msg := range modified.GetMessages() {
		if ref, ok := MediaFromMessage(msg); ok {
			return ref, nil
		}
	}
	return remote.MediaRef{}, fmt.Errorf("%w: %d", remote.ErrObjectNotFound, h)
}

// MediaFromMessage extracts the stored file of a message, if it has one.
func MediaFromMessage(msg tg.MessageClass) (remote.MediaRef, bool) {
	m, ok := msg.(*tg.Message)
	if !ok {
		return remote.MediaRef{}, false
	}
	media, ok := m.Media.(*tg.MessageMediaDocument)
	if !ok {
		return remote.MediaRef{}, false
	}
	docClass, ok := media.GetDocument()
	if !ok {
		return remote.MediaRef{}, false
	}
	doc, ok := docClass.AsNotEmpty()
	if !ok {
		return remote.MediaRef{}, false
	}

	ref := remote.MediaRef{
		FileID:   strconv.FormatInt(doc.ID, 10),
		Size:     doc.Size,
		MimeType: doc.MimeType,
		Location: remote.LocationID(strconv.Itoa(doc.DCID)),
		Locator: &tg.InputDocumentFileLocation{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		},
	}
	var isVideo, isAudio bool
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeFilename:
			ref.FileName = a.FileName
		case *tg.DocumentAttributeVideo:
			isVideo = true
		case *tg.DocumentAttributeAudio:
			isAudio = true
		}
	}
	return remote.FirstPresent(
		remote.Candidate{Kind: remote.KindDocument, Present: !isVideo && !isAudio, Ref: ref},
		remote.Candidate{Kind: remote.KindVideo, Present: isVideo, Ref: ref},
		remote.Candidate{Kind: remote.KindAudio, Present: isAudio, Ref: ref},
	)
}

// OpenSession uses the bot's own connection for its home DC. Any other DC
// gets a dedicated connection with the bot's authorization transferred to it.
func (c *Client) OpenSession(ctx context.Context, loc remote.LocationID) (remote.Session, error) {
	dc, err := strconv.Atoi(string(loc))
	if err != nil {
		return nil, fmt.Errorf("invalid data center %q: %w", loc, err)
	}
	if dc == c.homeDC {
		return &session{api: c.api}, nil
	}
	invoker, err := c.tc.DC(ctx, dc, 1)
	if err != nil {
		return nil, fmt.Errorf("connecting to dc %d: %w", dc, err)
	}
	logger := logging.GetLogger()
	logger.Debug().Str("client", c.name).Int("dc", dc).Msg("Opened media session")
	return &session{api: tg.NewClient(invoker), closer: invoker}, nil
}

type closer interface {
	Close() error
}

type session struct {
	api    *tg.Client
	closer closer
}

func (s *session) Fetch(ctx context.Context, ref remote.MediaRef, offset, limit int64) ([]byte, error) {
	loc, ok := ref.Locator.(*tg.InputDocumentFileLocation)
	if !ok {
		return nil, fmt.Errorf("unexpected locator %T for telegram", ref.Locator)
	}
	req := &tg.UploadGetFileRequest{
		Location: loc,
		Offset:   offset,
		Limit:    int(limit),
	}
	for attempt := 0; ; attempt++ {
		res, err := s.api.UploadGetFile(ctx, req)
		if d, ok := tgerr.AsFloodWait(err); ok && attempt < maxFloodWaits {
			logger := logging.GetLogger()
			logger.Warn().Dur("wait", d).Int64("offset", offset).Msg("Flood wait")
			select {
			case <-time.After(d):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err != nil {
			return nil, fmt.Errorf("upload.getFile at %d: %w", offset, err)
		}
		switch file := res.(type) {
		case *tg.UploadFile:
			return file.Bytes, nil
		default:
			// CDN redirects are not followed
			return nil, nil
		}
	}
}

// Close shuts down a dedicated DC connection.
func (s *session) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
