// Copyright 2021 PairMesh, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/libp2p/go-reuseport"
	"github.com/zerotier/vl1core/config"
	"github.com/zerotier/vl1core/constant"
	"github.com/zerotier/vl1core/security"
	"github.com/zerotier/vl1core/store"
	"github.com/zerotier/vl1core/trace"
	"github.com/zerotier/vl1core/vl1"
	"github.com/zerotier/vl1core/vl2"
	"go.uber.org/zap"
	"inet.af/netaddr"
)

// udpSender implements vl1.Sender over a single shared UDP socket, so every
// Path writes back out through the same local port it was discovered on.
type udpSender struct {
	conn net.PacketConn
}

func (s *udpSender) Send(path *vl1.Path, data []byte) error {
	addr := &net.UDPAddr{IP: net.ParseIP(path.Endpoint.IP().String()), Port: int(path.Endpoint.Port())}
	_, err := s.conn.WriteTo(data, addr)
	return err
}

func newStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendLedis:
		return store.NewLedisStore(cfg.Store.Path)
	case config.StoreBackendSQL:
		return store.NewSQLStore(store.MySQLConfig{
			Host:     cfg.Store.MySQLHost,
			Port:     cfg.Store.MySQLPort,
			User:     cfg.Store.MySQLUser,
			Password: cfg.Store.MySQLPassword,
			DB:       cfg.Store.MySQLDB,
		})
	default:
		return store.NewMemStore(), nil
	}
}

// Serve brings up the UDP socket, wires a vl1.Engine around it, and runs the
// receive loop and periodic maintenance ticker until ctx is cancelled.
func Serve(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config) error {
	zap.L().Info("vl1 node is starting up...", zap.String("name", cfg.Name), zap.String("listen", cfg.Listen))

	self, err := cfg.Identity()
	if err != nil {
		return err
	}

	st, err := newStore(cfg)
	if err != nil {
		return err
	}

	conn, err := reuseport.ListenPacket("udp", cfg.Listen)
	if err != nil {
		return err
	}
	defer conn.Close()

	sender := &udpSender{conn: conn}
	vctx := &vl1.Context{
		Identity: self,
		Topology: vl1.NewTopology(self, st),
		Expect:   vl1.NewExpect(),
		Trace:    trace.NewZapTrace(),
		Store:    st,
		VL2:      vl2.NewNopVL2(),
		Sender:   sender,
	}
	engine := vl1.NewEngine(vctx)

	roots, err := cfg.TrustedRoots()
	if err != nil {
		return err
	}
	if len(roots) > 0 {
		vctx.Topology.TrustStoreChanged(staticTrustStore(roots))
	}

	zap.L().Info("vl1 node identity", zap.Stringer("address", self.Address()))

	wg.Add(1)
	go recvLoop(ctx, wg, conn, engine)

	wg.Add(1)
	go periodicLoop(ctx, wg, engine, cfg.PeriodicInterval)

	<-ctx.Done()
	zap.L().Info("vl1 node shutting down")
	return nil
}

// staticTrustStore adapts the config file's fixed Roots list to
// vl1.TrustStore; the config is re-read rather than live-reloaded, so the
// root set never changes for the lifetime of the process.
type staticTrustStore []*security.Identity

func (s staticTrustStore) Roots() []*security.Identity { return s }

func recvLoop(ctx context.Context, wg *sync.WaitGroup, conn net.PacketConn, engine *vl1.Engine) {
	defer wg.Done()

	buf := make([]byte, constant.MaxBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			zap.L().Error("read UDP packet failed", zap.Error(err))
			continue
		}

		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}
		ip, ok := netaddr.FromStdIP(udpAddr.IP)
		if !ok {
			continue
		}
		remote := netaddr.IPPortFrom(ip, uint16(udpAddr.Port))

		data := make([]byte, n)
		copy(data, buf[:n])
		engine.OnRemotePacket(0, "", remote, data)
	}
}

func periodicLoop(ctx context.Context, wg *sync.WaitGroup, engine *vl1.Engine, interval time.Duration) {
	defer wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			engine.Periodic(now)
		}
	}
}
