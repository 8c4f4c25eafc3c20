package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"dim_chat/internal/config"
	"dim_chat/internal/model"
	"dim_chat/internal/protocol/cipherkey"
	"dim_chat/internal/protocol/identity"
	"dim_chat/internal/protocol/message"
	"dim_chat/internal/protocol/packer"
	userRepo "dim_chat/internal/repository/user"
	"dim_chat/internal/service/facebook"
	"dim_chat/internal/service/redis"
	"dim_chat/internal/utils/log"
)

type (
	App struct {
		app     *tview.Application
		chatbox *tview.TextView
		input   *tview.InputField

		cfg          *config.Config
		host         string
		httpClient   *http.Client
		redisService *redis.RedisService

		userRepo *userRepo.UserRepo
		user     *model.User
		account  *account

		facebook *facebook.Facebook
		keyCache *cipherkey.KeyCache
		packer   *packer.Packer

		to *identity.ID

		conn     *websocket.Conn
		writeMu  sync.Mutex
		stopOnce sync.Once
	}
)

// NewApp wires a client. archive keeps the contacts' metas, visas and group
// members between runs; it may be nil.
func NewApp(cfg *config.Config, userRepo *userRepo.UserRepo, archive facebook.Archive, redis *redis.RedisService) *App {
	return &App{
		app:          tview.NewApplication(),
		cfg:          cfg,
		host:         cfg.Server.Host,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		redisService: redis,
		userRepo:     userRepo,
		facebook:     facebook.New(archive),
	}
}

// login registers the account's keys and records locally, publishes them to
// the station and restores the cipher keys of earlier sessions.
func (c *App) login(ctx context.Context, acc *account) error {
	c.account = acc
	if err := c.facebook.AddLocalUser(acc.id, acc.signKey, acc.visaKey); err != nil {
		return err
	}
	if err := c.facebook.SaveMeta(acc.meta, acc.id); err != nil {
		return err
	}
	if err := c.facebook.SaveDocument(acc.visa); err != nil {
		return err
	}

	var store cipherkey.KeyStore
	if c.redisService != nil {
		store = newKeyStore(c.redisService, acc.id.String(), c.cfg.Redis.KeyTTL)
	}
	c.keyCache = cipherkey.NewKeyCache(c.cfg.Account.Algorithm, c.cfg.Cache.CipherKeys, store)
	if err := c.keyCache.Reload(ctx); err != nil {
		log.Warn("some cipher keys could not be restored", zap.Error(err))
	}
	c.packer = packer.New(c.facebook, c.keyCache, packer.WithAttachments())

	return c.publish(acc)
}

// resolve fetches what is needed to talk to id: its meta and visa, or for a
// group its members and theirs.
func (c *App) resolve(id *identity.ID) error {
	if id.IsBroadcast() {
		return nil
	}
	if !id.IsGroup() {
		return c.resolveContact(id)
	}
	members, err := c.getMembers(id)
	if err != nil {
		return fmt.Errorf("members of %s: %w", id, err)
	}
	if len(members) == 0 {
		return fmt.Errorf("%w: %s", model.ErrGroupNotResolved, id)
	}
	if err := c.facebook.SaveMembers(id, members); err != nil {
		return err
	}
	for _, member := range members {
		if err := c.resolveContact(member); err != nil {
			log.Warn("member unreachable", zap.Stringer("member", member), zap.Error(err))
		}
	}
	return nil
}

func (c *App) resolveContact(id *identity.ID) error {
	if c.facebook.Meta(id) == nil {
		m, err := c.getMeta(id)
		if err != nil {
			return fmt.Errorf("meta of %s: %w", id, err)
		}
		if err := c.facebook.SaveMeta(m, id); err != nil {
			return err
		}
	}
	visa, err := c.getVisa(id)
	switch {
	case errors.Is(err, errNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("visa of %s: %w", id, err)
	}
	return c.facebook.SaveDocument(visa)
}

func (c *App) Run(ctx context.Context, name string) {
	acc, err := c.getUserAndCreateIfNotExist(ctx, name)
	if err != nil {
		log.Fatal("get user info failed", zap.Error(err))
	}
	if err := c.login(ctx, acc); err != nil {
		log.Fatal("login failed", zap.Error(err))
	}
	fmt.Printf("You are %s\n", acc.id)

	var to string
	fmt.Print("Enter recipient's ID: ")
	_, err = fmt.Scan(&to) // reads until whitespace
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	c.to, err = identity.Parse(to)
	if err != nil {
		log.Fatal("invalid recipient", zap.Error(err))
	}
	if err := c.resolve(c.to); err != nil {
		log.Fatal("cannot resolve recipient", zap.Error(err))
	}

	c.conn, err = c.initWebhook(acc.id, uuid.NewString())
	if err != nil {
		log.Fatal("connect to station failed", zap.Error(err))
	}

	go c.listenOnWebhook()
	c.renderUI()
}

// Stop flushes the cipher keys and closes the connection. Later calls are
// no-ops.
func (c *App) Stop(ctx context.Context) {
	c.stopOnce.Do(func() {
		if c.keyCache != nil {
			if err := c.keyCache.Flush(ctx); err != nil {
				log.Error("flush cipher keys failed", zap.Error(err))
			}
		}
		if c.conn != nil {
			c.conn.Close()
		}
		c.app.Stop()
	})
}

// blocking function
func (c *App) renderUI() {
	c.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	c.chatbox.SetBorder(true).SetTitle(fmt.Sprintf(" Chat with %s ", c.to))

	c.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	c.input.SetBorder(true).SetTitle(" New Message ")

	c.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			text := c.input.GetText()
			if text == "" {
				return
			}

			go func(msg string) {
				err := c.SendMessage(msg)
				if err != nil {
					c.app.Suspend(func() {
						log.Error("Send message failed", zap.Error(err))
					})
				}
			}(text)
		}
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.chatbox, 0, 1, false).
		AddItem(c.input, 3, 0, true)

	if err := c.app.SetRoot(layout, true).SetFocus(c.input).Run(); err != nil {
		log.Fatal("cannot init app", zap.Error(err))
	}
}

func (c *App) listenOnWebhook() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug("station web socket closed", zap.Error(err))
			c.conn.Close()
			break
		}

		iMsg, err := c.ReceiveMessage(data)
		if err != nil {
			c.app.Suspend(func() {
				log.Error("receive message failed: ", zap.Error(err))
			})
			continue
		}
		c.show(iMsg)
	}
}

func (c *App) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *App) SendMessage(msg string) error {
	iMsg := message.NewInstant(message.NewEnvelope(c.account.id, c.to), message.NewText(msg))
	data, err := c.packer.Pack(iMsg)
	if err != nil {
		return err
	}
	if err := c.write(data); err != nil {
		return err
	}

	c.app.QueueUpdateDraw(func() {
		fmt.Fprintf(c.chatbox, "[yellow]You:[-] %s\n", tview.Escape(msg))
		c.input.SetText("")
		c.chatbox.ScrollToEnd()
	})
	return nil
}

// ReceiveMessage unpacks a frame. A sender whose keys are unknown is looked
// up on the station once before giving up.
func (c *App) ReceiveMessage(data []byte) (*message.InstantMessage, error) {
	iMsg, err := c.packer.Unpack(data)
	if !errors.Is(err, model.ErrKeyNotFound) {
		return iMsg, err
	}
	rMsg, derr := c.packer.Deserialize(data)
	if derr != nil {
		return nil, err
	}
	if rerr := c.resolveContact(rMsg.Sender); rerr != nil {
		return nil, fmt.Errorf("%w: %w", err, rerr)
	}
	return c.packer.Unpack(data)
}

func (c *App) show(iMsg *message.InstantMessage) {
	from := iMsg.Sender.Name()
	group := iMsg.Group
	if group == nil {
		group = iMsg.Content.Group()
	}
	if group != nil {
		from = fmt.Sprintf("%s in %s", from, group.Name())
	}
	text := iMsg.Content.Text()
	if text == "" {
		text = fmt.Sprintf("(%s)", iMsg.Content.Type())
	}
	c.app.QueueUpdateDraw(func() {
		fmt.Fprintf(c.chatbox, "[green]%s:[-] %s\n", tview.Escape(from), tview.Escape(text))
		c.chatbox.ScrollToEnd()
	})
}
