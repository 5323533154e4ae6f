package worker

import (
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/client"
	"github.com/stackia/rtp2httpd/internal/config"
	"github.com/stackia/rtp2httpd/internal/httpfront"
	"github.com/stackia/rtp2httpd/internal/logger"
	"github.com/stackia/rtp2httpd/internal/service"
	"github.com/stackia/rtp2httpd/internal/zerocopy"
)

func testWorker(t *testing.T) *Worker {
	t.Helper()
	cfg := &config.Config{
		Global: config.Global{BufferPoolInitial: 4, BufferPoolMaxSize: 16},
		Bind:   config.Bind{Address: "127.0.0.1", Port: 0, Workers: 1},
	}
	w, err := New(cfg, logger.New(logger.Options{Level: logger.ErrorLevel}).With(nil))
	require.NoError(t, err)
	return w
}

func TestNewBuildsConfiguredServices(t *testing.T) {
	cfg := &config.Config{
		Global: config.Global{BufferPoolInitial: 4, BufferPoolMaxSize: 16},
		Bind:   config.Bind{Address: "127.0.0.1", Port: 0, Workers: 1},
		Services: []config.ServiceDef{
			{Name: "news", Kind: "udp", Multicast: "239.1.1.1:5000"},
		},
	}
	w, err := New(cfg, logger.New(logger.Options{Level: logger.ErrorLevel}).With(nil))
	require.NoError(t, err)

	svc, ok := w.lookupService("news")
	require.True(t, ok)
	require.Equal(t, "news", svc.Name)
	require.Equal(t, service.KindMulticastUDP, svc.Kind)
}

func TestSetServicesReplacesTableAtomically(t *testing.T) {
	w := testWorker(t)
	_, ok := w.lookupService("news")
	require.False(t, ok)

	w.SetServices([]config.ServiceDef{{Name: "news", Kind: "udp", Multicast: "239.1.1.1:5000"}})
	svc, ok := w.lookupService("news")
	require.True(t, ok)
	require.Equal(t, "news", svc.Name)

	w.SetServices([]config.ServiceDef{{Name: "sports", Kind: "udp", Multicast: "239.1.1.2:5000"}})
	_, ok = w.lookupService("news")
	require.False(t, ok)
	_, ok = w.lookupService("sports")
	require.True(t, ok)
}

func TestAdHocMulticastServiceBuildsUDPAndRTP(t *testing.T) {
	udpRoute, err := httpfront.ParseRoute("udp/239.1.1.1:5000", url.Values{}, "", "")
	require.NoError(t, err)
	svc, err := adHocMulticastService(udpRoute)
	require.NoError(t, err)
	require.Equal(t, service.KindMulticastUDP, svc.Kind)
	require.False(t, svc.UsesFCC())

	rtpRoute, err := httpfront.ParseRoute("rtp/239.1.1.1:5000", url.Values{"fcc": {"10.0.0.1:15970"}}, "", "")
	require.NoError(t, err)
	svc, err = adHocMulticastService(rtpRoute)
	require.NoError(t, err)
	require.Equal(t, service.KindMulticastRTP, svc.Kind)
	require.True(t, svc.UsesFCC())
	require.Equal(t, service.FCCTelecom, svc.FCCVariant)
}

func TestRegisterUnregisterClientClosesStopChannel(t *testing.T) {
	w := testWorker(t)
	svc := service.NewMulticastUDP("news", net.ParseIP("239.1.1.1"), 5000)
	queue := zerocopy.NewQueue(1 << 20)
	cl := client.New(1, w.PID, nil, svc, queue)
	h := &clientHandle{client: cl, stop: make(chan struct{})}

	w.registerClient(h)
	_, ok := w.clients[cl.ID]
	require.True(t, ok)

	w.unregisterClient(cl.ID, svc)
	_, ok = w.clients[cl.ID]
	require.False(t, ok)

	select {
	case <-h.stop:
	default:
		t.Fatal("expected stop channel to be closed on unregister")
	}
}
