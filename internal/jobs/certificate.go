package jobs

import "github.com/notifyhub/eventdesk/internal/queue"

type CertificateJob interface {
	Job
	certificateJob()
}

type certificateQueue struct{}

func (certificateQueue) Queue() string   { return QueueCertificate }
func (certificateQueue) certificateJob() {}

type GenerateCertificate struct {
	certificateQueue
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
}

func (GenerateCertificate) Kind() string { return "generate_single" }

// GenerateBulkCertificates issues certificates to every attendee of an event.
// Enqueue it with queue.WithTimeout(BulkCertificateTimeout).
type GenerateBulkCertificates struct {
	certificateQueue
	EventID string `json:"event_id"`
}

func (GenerateBulkCertificates) Kind() string { return "generate_bulk" }

type RegenerateCertificate struct {
	certificateQueue
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
}

func (RegenerateCertificate) Kind() string { return "regenerate" }

var certificateKinds = map[string]func() CertificateJob{
	"generate_single": func() CertificateJob { return &GenerateCertificate{} },
	"generate_bulk":   func() CertificateJob { return &GenerateBulkCertificates{} },
	"regenerate":      func() CertificateJob { return &RegenerateCertificate{} },
}

func DecodeCertificate(j *queue.Job) (CertificateJob, error) { return decode(j, certificateKinds) }
