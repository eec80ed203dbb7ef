// Package discovery implements robot URL discovery (C10): a UDP listener
// that accepts announce packets from the robot, and the equivalent HTTP
// registration path used when UDP is not reachable. Both paths converge on
// store.Store.SetRobotURL. The UDP loop is shaped like the reference
// gateway's other long-running accept loops (context-cancelable, logging
// and discarding malformed input rather than tearing down the process).
package discovery

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tabledelivery/control-core/internal/store"
)

type announcePacket struct {
	Type string `json:"type"`
	Port uint16 `json:"port"`
}

// Discovery owns the UDP listener and the HTTP registration handler.
type Discovery struct {
	store  *store.Store
	apiKey string
	logger *zap.Logger
}

func New(st *store.Store, apiKey string, logger *zap.Logger) *Discovery {
	return &Discovery{store: st, apiKey: apiKey, logger: logger}
}

// ListenUDP opens a UDP socket on addr and runs the accept loop until ctx
// is canceled. Intended to be run in its own goroutine.
func (d *Discovery) ListenUDP(ctx context.Context, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 1024)
	for {
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				if d.logger != nil {
					d.logger.Warn("discovery: udp read error", zap.Error(err))
				}
				continue
			}
		}
		d.handleAnnounce(buf[:n], raddr.IP.String())
	}
}

func (d *Discovery) handleAnnounce(data []byte, senderIP string) {
	var pkt announcePacket
	if err := json.Unmarshal(data, &pkt); err != nil || pkt.Type != "announce" {
		if d.logger != nil {
			d.logger.Debug("discovery: discarding malformed udp packet")
		}
		return
	}
	d.updateRobotURL("http://" + senderIP + ":" + strconv.Itoa(int(pkt.Port)))
}

func (d *Discovery) updateRobotURL(url string) {
	if d.store.RobotURL() == url {
		return
	}
	d.store.SetRobotURL(url)
	if d.logger != nil {
		d.logger.Info("discovery: robot url updated", zap.String("url", url))
	}
}

type registerBody struct {
	Port uint16 `json:"port"`
}

// HandleRegister is POST table/register, the HTTP equivalent of the UDP
// announce path.
func (d *Discovery) HandleRegister(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get("X-Api-Key")
	if subtle.ConstantTimeCompare([]byte(got), []byte(d.apiKey)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body registerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	ip := clientIP(r)
	d.updateRobotURL("http://" + ip + ":" + strconv.Itoa(int(body.Port)))

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// clientIP resolves the caller's address, preferring X-Real-IP, then the
// first entry of X-Forwarded-For, then the TCP peer address.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
