package worker

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/stackia/rtp2httpd/internal/buffer"
	"github.com/stackia/rtp2httpd/internal/httpfront"
	"github.com/stackia/rtp2httpd/internal/ingress"
	"github.com/stackia/rtp2httpd/internal/rtpheader"
	"github.com/stackia/rtp2httpd/internal/service"
)

// tsPacketLen is the fixed MPEG-TS packet size the classifier below walks.
const tsPacketLen = 188

// tsRandomAccess is an ingress.FrameClassifier that inspects only the TS
// framing layer, never the video bitstream (spec §1 Non-goals): it
// reports true when any 188-byte packet in payload carries
// adaptation_field_control's random_access_indicator bit, the same
// signal udpxy-style snapshot tools use to find a GOP boundary without
// decoding anything.
func tsRandomAccess(payload []byte) bool {
	for off := 0; off+tsPacketLen <= len(payload); off += tsPacketLen {
		pkt := payload[off : off+tsPacketLen]
		if pkt[0] != 0x47 {
			continue
		}
		adaptationFieldControl := (pkt[3] >> 4) & 0x3
		if adaptationFieldControl != 0x2 && adaptationFieldControl != 0x3 {
			continue
		}
		adaptationFieldLength := int(pkt[4])
		if adaptationFieldLength < 1 {
			continue
		}
		flags := pkt[5]
		if flags&0x40 != 0 {
			return true
		}
	}
	return false
}

// serveSnapshot answers a snapshot=1 request (spec §4.6/§6.1) by joining
// the multicast session as a non-streaming subscriber that only
// accumulates frames into an ingress.Accumulator, then invoking the
// configured external decoder once enough of a GOP has been buffered.
func (w *Worker) serveSnapshot(rw http.ResponseWriter, r *http.Request, svc *service.Service) {
	id := w.nextClientID()
	acc := ingress.NewAccumulator(tsRandomAccess)

	done := make(chan struct{})
	var closeOnce sync.Once
	sub := subscriber{onPacket: func(hdr rtpheader.Header, buf *buffer.PacketBuffer) {
		acc.Feed(buf.Bytes()[hdr.PayloadOffset:])
		buf.Release()
		if acc.Completed {
			closeOnce.Do(func() { close(done) })
		}
	}}

	if err := w.registry.joinMulticast(svc, id, sub, w.registerFd); err != nil {
		w.log.Warnf("worker %d: joining multicast for snapshot %d: %v", w.PID, id, err)
		httpfront.WriteUpstreamError(rw, false)
		return
	}
	defer w.registry.leaveMulticast(svc, id)

	ctx, cancel := context.WithTimeout(r.Context(), ingress.DecodeTimeout+2*time.Second)
	defer cancel()

	select {
	case <-done:
	case <-ctx.Done():
		httpfront.WriteUpstreamError(rw, true)
		return
	}

	decodeCtx, decodeCancel := context.WithTimeout(context.Background(), ingress.DecodeTimeout)
	defer decodeCancel()
	jpeg, err := ingress.DecodeJPEG(decodeCtx, w.cfg.Global.FFmpegPath, w.cfg.Global.FFmpegArgs, acc.Bytes(), w.log)
	if err != nil {
		w.log.Warnf("worker %d: snapshot decode for %s failed: %v", w.PID, svc.Name, err)
		httpfront.WriteUpstreamError(rw, false)
		return
	}

	rw.Header().Set("Content-Type", "image/jpeg")
	rw.Header().Set("Connection", "close")
	_, _ = rw.Write(jpeg)
}
