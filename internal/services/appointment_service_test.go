package services_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yoockh/medscribe/internal/repositories/memory"
	"github.com/yoockh/medscribe/internal/services"
	"github.com/yoockh/medscribe/internal/utils"
)

var _ = Describe("AppointmentService", func() {
	var (
		ctx context.Context
		svc services.AppointmentService
	)

	doctor := services.Viewer{Role: "doctor"}
	patient := services.Viewer{Role: "patient", PatientID: "1"}
	stranger := services.Viewer{Role: "patient", PatientID: "2"}

	BeforeEach(func() {
		ctx = context.Background()
		f, err := memory.DefaultFixtures()
		Expect(err).NotTo(HaveOccurred())
		svc = services.NewAppointmentService(memory.NewAppointmentRepository(f), memory.NewPatientRepository(f))
	})

	It("lists everything for doctors and only their own for patients", func() {
		all, err := svc.List(ctx, doctor)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(5))

		own, err := svc.List(ctx, patient)
		Expect(err).NotTo(HaveOccurred())
		Expect(own).To(HaveLen(5))

		none, err := svc.List(ctx, stranger)
		Expect(err).NotTo(HaveOccurred())
		Expect(none).To(BeEmpty())

		_, err = svc.List(ctx, services.Viewer{Role: "patient"})
		Expect(utils.IsCode(err, utils.CodeForbidden)).To(BeTrue())
	})

	It("hides other patients' appointments", func() {
		apt, err := svc.Get(ctx, patient, "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(apt.Doctor).To(Equal("Dr. Laurent Martin"))

		_, err = svc.Get(ctx, stranger, "1")
		Expect(utils.IsCode(err, utils.CodeNotFound)).To(BeTrue())

		_, err = svc.Get(ctx, doctor, "99")
		Expect(utils.IsCode(err, utils.CodeNotFound)).To(BeTrue())
	})

	It("returns a patient record with appointments", func() {
		rec, err := svc.GetPatient(ctx, doctor, "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.LastName).To(Equal("Dupont"))
		Expect(rec.Appointments).To(HaveLen(5))

		_, err = svc.GetPatient(ctx, stranger, "1")
		Expect(utils.IsCode(err, utils.CodeForbidden)).To(BeTrue())

		_, err = svc.GetPatient(ctx, doctor, "7")
		Expect(utils.IsCode(err, utils.CodeNotFound)).To(BeTrue())
	})
})
