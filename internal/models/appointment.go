package models

type AppointmentStatus string

const (
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

type Patient struct {
	ID          string   `json:"id"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	DateOfBirth string   `json:"date_of_birth"` // YYYY-MM-DD
	Phone       string   `json:"phone"`
	Email       string   `json:"email"`
	BloodType   string   `json:"blood_type"`
	Allergies   []string `json:"allergies"`
	Antecedents []string `json:"antecedents"`
}

type Appointment struct {
	ID              string            `json:"id"`
	PatientID       string            `json:"patient_id"`
	Date            string            `json:"date"` // YYYY-MM-DD
	Time            string            `json:"time"` // HH:MM
	Doctor          string            `json:"doctor"`
	DoctorSpecialty string            `json:"doctor_specialty"`
	Motif           string            `json:"motif"`
	Status          AppointmentStatus `json:"status"`
	Notes           string            `json:"notes,omitempty"`
	AISummary       string            `json:"ai_summary,omitempty"`
}
