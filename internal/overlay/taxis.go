package overlay

import (
	"baechamap/internal/maphost"
	"baechamap/internal/state"
)

const (
	TaxiIcon = "taxi"
	TaxiSize = 64
)

type taxiLayer struct {
	synced bool
	rev    uint64
	cur    *pass
}

func (l *taxiLayer) sync(m maphost.Map, v state.View) bool {
	if l.synced && l.rev == v.TaxisRev {
		return false
	}
	l.release()
	l.cur = &pass{}
	for _, t := range v.Taxis {
		l.cur.attach(m.AddMarker(maphost.MarkerOptions{
			Key:      t.ID,
			Position: t.Position(),
			Icon:     TaxiIcon,
			Width:    TaxiSize,
			Height:   TaxiSize,
		}))
	}
	l.synced = true
	l.rev = v.TaxisRev
	return true
}

func (l *taxiLayer) release() {
	if l.cur != nil {
		l.cur.release()
		l.cur = nil
	}
}
