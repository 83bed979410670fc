package boxsignal

import (
	"github.com/Dan9191/lostcard-service/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Connect opens a NATS connection that keeps retrying in the background and
// replays the queue whenever the connection comes (back) up
func Connect(cfg *config.Config, queue *Queue, log *logrus.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("lostcard-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ConnectHandler(func(*nats.Conn) {
			log.Info("Box transport connected")
			go queue.Replay()
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infof("Box transport reconnected to %s", c.ConnectedUrl())
			go queue.Replay()
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("Box transport disconnected")
			}
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	conn, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

var _ Publisher = (*nats.Conn)(nil)
