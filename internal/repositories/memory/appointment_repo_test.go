package memory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yoockh/medscribe/internal/models"
	"github.com/yoockh/medscribe/internal/repositories/memory"
	"github.com/yoockh/medscribe/internal/utils"
)

var _ = Describe("Fixture repositories", func() {
	ctx := context.Background()

	var fixtures *memory.Fixtures

	BeforeEach(func() {
		var err error
		fixtures, err = memory.DefaultFixtures()
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("LoadFixtures", func() {
		It("rejects an appointment for an unknown patient", func() {
			_, err := memory.LoadFixtures([]byte(`{"patients":[{"id":"1"}],"appointments":[{"id":"a","patient_id":"2"}]}`))
			Expect(err).To(MatchError(ContainSubstring("unknown patient")))
		})

		It("rejects invalid json", func() {
			_, err := memory.LoadFixtures([]byte(`{`))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("AppointmentRepository", func() {
		var repo memory.AppointmentRepository

		BeforeEach(func() {
			repo = memory.NewAppointmentRepository(fixtures)
		})

		It("lists appointments newest first", func() {
			rows, err := repo.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(5))

			dates := make([]string, 0, len(rows))
			for _, r := range rows {
				dates = append(dates, r.Date)
			}
			Expect(dates).To(Equal([]string{"2026-03-20", "2026-03-12", "2026-03-05", "2026-02-20", "2026-01-15"}))
		})

		It("finds an appointment by id", func() {
			a, err := repo.GetByID(ctx, "3")
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Motif).To(Equal("Renouvellement ordonnance"))
			Expect(a.Status).To(Equal(models.AppointmentConfirmed))
		})

		It("returns ErrNotFound for an unknown id", func() {
			_, err := repo.GetByID(ctx, "404")
			Expect(err).To(MatchError(utils.ErrNotFound))
		})

		It("filters by patient", func() {
			rows, err := repo.ListByPatient(ctx, "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(5))

			rows, err = repo.ListByPatient(ctx, "nobody")
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).NotTo(BeNil())
			Expect(rows).To(BeEmpty())
		})
	})

	Describe("PatientRepository", func() {
		It("returns a copy of the patient", func() {
			repo := memory.NewPatientRepository(fixtures)

			p, err := repo.GetByID(ctx, "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Allergies).To(ContainElement("Pénicilline"))

			p.Allergies[0] = "changed"
			again, err := repo.GetByID(ctx, "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Allergies[0]).To(Equal("Pénicilline"))

			_, err = repo.GetByID(ctx, "2")
			Expect(err).To(MatchError(utils.ErrNotFound))
		})
	})
})
