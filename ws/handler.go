package ws

import (
	"context"
	"encoding/json"

	"github.com/kataras/iris/v12/websocket"
	"github.com/kataras/neffos"
	log "github.com/sirupsen/logrus"

	"github.com/netwatcherio/netwatcher-diag/probes"
	"github.com/netwatcherio/netwatcher-diag/workers"
)

const (
	Namespace   = "diagnostics"
	EventResult = "result"

	ctxKey = "diag_ctx"
)

type EventTypeWS string

const (
	eventTypeWS_Interfaces EventTypeWS = "interfaces"
	eventTypeWS_SpeedTest  EventTypeWS = "speedtest"
	eventTypeWS_AnalyzeURL EventTypeWS = "analyze_url"
	eventTypeWS_NetInfo    EventTypeWS = "netinfo"
)

var eventProbeTypes = map[EventTypeWS]probes.ProbeType{
	eventTypeWS_Interfaces: probes.ProbeType_INTERFACES,
	eventTypeWS_SpeedTest:  probes.ProbeType_SPEEDTEST,
	eventTypeWS_AnalyzeURL: probes.ProbeType_URLANALYSIS,
	eventTypeWS_NetInfo:    probes.ProbeType_NETWORKINFO,
}

type WebSocketHandler struct {
	dispatcher *workers.Dispatcher
}

// New returns a websocket server answering diagnostic events in the
// diagnostics namespace. Every request gets exactly one "result" reply.
func New(d *workers.Dispatcher) *neffos.Server {
	wsH := &WebSocketHandler{dispatcher: d}
	return websocket.New(websocket.DefaultGobwasUpgrader, wsH.loadNamespaces())
}

func (wsH *WebSocketHandler) loadNamespaces() websocket.Namespaces {
	events := websocket.Events{
		websocket.OnNamespaceConnected: func(c *websocket.NSConn, msg websocket.Message) error {
			ctx, cancel := context.WithCancel(context.Background())
			c.Conn.Set(ctxKey, connContext{ctx, cancel})
			log.Infof("client %s connected to namespace: %s", c.Conn.ID(), msg.Namespace)
			return nil
		},
		websocket.OnNamespaceDisconnect: func(c *websocket.NSConn, msg websocket.Message) error {
			if cc, ok := c.Conn.Get(ctxKey).(connContext); ok {
				cc.cancel()
			}
			log.Infof("client %s disconnected from namespace: %s", c.Conn.ID(), msg.Namespace)
			return nil
		},
	}
	for event, probeType := range eventProbeTypes {
		events[string(event)] = wsH.handleProbe(probeType)
	}

	return websocket.Namespaces{Namespace: events}
}

type connContext struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (wsH *WebSocketHandler) handleProbe(t probes.ProbeType) neffos.MessageHandlerFunc {
	return func(nsConn *websocket.NSConn, msg websocket.Message) error {
		var p probes.Probe
		if len(msg.Body) > 0 {
			if err := json.Unmarshal(msg.Body, &p); err != nil {
				log.Warnf("bad %s request from %s: %v", msg.Event, nsConn.Conn.ID(), err)
				return err
			}
		}
		p.Type = t

		ctx := context.Background()
		if cc, ok := nsConn.Conn.Get(ctxKey).(connContext); ok {
			ctx = cc.ctx
		}

		// probes can take a minute, keep the reader free
		go func() {
			out := wsH.dispatcher.Handle(ctx, p)
			b, err := json.Marshal(out)
			if err != nil {
				log.Errorf("marshal %s result: %v", t, err)
				return
			}
			if !nsConn.Emit(EventResult, b) {
				log.Debugf("client %s went away before %s result", nsConn.Conn.ID(), t)
			}
		}()
		return nil
	}
}
