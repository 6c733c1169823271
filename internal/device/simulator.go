package device

import (
	"encoding/json"
	"math/rand"
	"time"
)

// Simulator sinh frame giả lập: mỗi nhịp đảo trạng thái một slot ngẫu nhiên,
// gate mở khi còn chỗ với xác suất 1/2. Cùng seed cho cùng chuỗi frame.
type Simulator struct {
	rng   *rand.Rand
	slots []int
}

func NewSimulator(totalSlots int, seed int64) *Simulator {
	slots := make([]int, totalSlots)
	if totalSlots > 1 {
		slots[1] = 1
	}
	return &Simulator{rng: rand.New(rand.NewSource(seed)), slots: slots}
}

type simulatedFrame struct {
	Slots     []int  `json:"slots"`
	Free      int    `json:"free_slots"`
	Total     int    `json:"total_slots"`
	Gate      string `json:"gate"`
	Timestamp string `json:"timestamp"`
}

// NextLine trả về dòng JSON kế tiếp, giống như firmware gửi lên.
func (s *Simulator) NextLine(now time.Time) []byte {
	if len(s.slots) > 0 {
		idx := s.rng.Intn(len(s.slots))
		s.slots[idx] ^= 1
	}
	occupied := 0
	for _, v := range s.slots {
		occupied += v
	}
	free := len(s.slots) - occupied
	gate := "closed"
	if free > 0 && s.rng.Float64() > 0.5 {
		gate = "open"
	}
	b, _ := json.Marshal(simulatedFrame{
		Slots:     append([]int(nil), s.slots...),
		Free:      free,
		Total:     len(s.slots),
		Gate:      gate,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	})
	return b
}
