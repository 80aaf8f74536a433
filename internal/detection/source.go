package detection

import (
	"context"
	"image"
	"math/rand/v2"
	"sync"

	"classwatch/internal/camera"
	"classwatch/internal/faceclient"
	"classwatch/internal/session"
)

// Source recognizes who is in a frame. ok is false when nobody was seen.
type Source interface {
	Detect(ctx context.Context, frame image.Image) (d Detection, ok bool, err error)
}

// UnknownName labels faces that match nobody in the gallery.
const UnknownName = "Unknown Person"

var mockPool = []Detection{
	{Name: "John Smith", Confidence: 0.95, Authorized: true},
	{Name: UnknownName, Confidence: 0.87, Authorized: false},
}

// MockSource fires with probability p and picks uniformly from a fixed pool
// of one authorized and one unknown person. The frame is ignored.
type MockSource struct {
	mu sync.Mutex
	r  *rand.Rand
	p  float64
}

// NewMockSource uses r for every draw; nil seeds a fresh PCG.
func NewMockSource(p float64, r *rand.Rand) *MockSource {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &MockSource{r: r, p: p}
}

func (s *MockSource) Detect(_ context.Context, _ image.Image) (Detection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.r.Float64() >= s.p {
		return Detection{}, false, nil
	}
	return mockPool[s.r.IntN(len(mockPool))], true, nil
}

// Roster reports the session state used to decide authorization.
type Roster interface {
	Status() session.Status
}

// FaceServiceSource sends frames to the face recognition service. A match is
// authorized when it is on the active session roster; outside a session any
// recognized person is authorized.
type FaceServiceSource struct {
	client    *faceclient.Client
	roster    Roster
	threshold float64
}

func NewFaceServiceSource(client *faceclient.Client, roster Roster, threshold float64) *FaceServiceSource {
	return &FaceServiceSource{client: client, roster: roster, threshold: threshold}
}

func (s *FaceServiceSource) Detect(ctx context.Context, frame image.Image) (Detection, bool, error) {
	img, err := camera.EncodeJPEGDataURL(frame, camera.JPEGQuality)
	if err != nil {
		return Detection{}, false, err
	}
	res, err := s.client.Search(ctx, img, 1, s.threshold)
	if err != nil {
		return Detection{}, false, err
	}
	if res.FacesDetected == 0 {
		return Detection{}, false, nil
	}
	m, ok := res.Best()
	if !ok || m.Similarity < s.threshold {
		conf := 0.0
		if ok {
			conf = 1 - m.Similarity
		}
		return Detection{Name: UnknownName, Confidence: conf}, true, nil
	}

	name := m.Name
	if name == "" {
		name = m.UserID
	}
	st := s.roster.Status()
	authorized := !st.InSession || st.Authorizes(name)
	return Detection{Name: name, Confidence: m.Similarity, Authorized: authorized}, true, nil
}
