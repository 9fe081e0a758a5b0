package consultation_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yoockh/medscribe/internal/consultation"
	"github.com/yoockh/medscribe/internal/models"
	"github.com/yoockh/medscribe/internal/utils"
)

var _ = Describe("Prescription draft", func() {
	var (
		ctx context.Context
		gw  *stubGateway
		lc  *consultation.Lifecycle
	)

	ended := func() {
		Expect(lc.Start(ctx)).To(Succeed())
		Expect(lc.End(ctx)).To(Succeed())
		Eventually(lc.Done()).Should(BeClosed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		gw = &stubGateway{summary: anginaSummary()}
		var err error
		lc, err = consultation.New(consultation.Config{
			ID:            "c-1",
			AppointmentID: "apt-1",
			PatientID:     "p-1",
			Allergies:     []string{"Pénicilline"},
			Channel:       newCountingChannel(),
			Gateway:       gw,
			Now:           func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) },
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("is unavailable until the consultation has ended", func() {
		_, err := lc.Prescription()
		Expect(utils.IsCode(err, utils.CodeFailedPrecondition)).To(BeTrue())

		Expect(lc.Start(ctx)).To(Succeed())
		_, err = lc.AddMedication()
		Expect(err).To(MatchError(consultation.ErrInvalidTransition))
	})

	It("is unavailable when summarization failed", func() {
		gw.err = errors.New("down")
		ended()

		_, err := lc.Prescription()
		Expect(err).To(MatchError(consultation.ErrNoSummary))
	})

	It("starts from the proposed medications and flags allergy conflicts", func() {
		ended()

		view, err := lc.Prescription()
		Expect(err).NotTo(HaveOccurred())
		Expect(view.Medications).To(Equal(anginaSummary().ProposedMedications))
		Expect(view.Validated).To(BeFalse())
		Expect(view.AllergyConflicts).To(ConsistOf(consultation.AllergyConflict{Medication: "Amoxicilline", Allergy: "Pénicilline"}))
	})

	It("edits a copy and leaves the summary untouched", func() {
		ended()

		view, err := lc.UpdateMedication(0, consultation.FieldName, "Azithromycine")
		Expect(err).NotTo(HaveOccurred())
		Expect(view.Medications[0].Name).To(Equal("Azithromycine"))
		Expect(view.AllergyConflicts).To(BeEmpty())

		view, err = lc.UpdateMedication(1, consultation.FieldDosage, "500mg")
		Expect(err).NotTo(HaveOccurred())
		Expect(view.Medications[1].Dosage).To(Equal("500mg"))

		Expect(lc.Summary()).To(Equal(anginaSummary()))
	})

	It("adds and removes medications", func() {
		ended()

		view, err := lc.AddMedication()
		Expect(err).NotTo(HaveOccurred())
		Expect(view.Medications).To(HaveLen(3))
		Expect(view.Medications[2]).To(Equal(models.Medication{}))

		view, err = lc.RemoveMedication(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(view.Medications).To(HaveLen(2))
		Expect(view.Medications[0].Name).To(Equal("Paracétamol"))
	})

	DescribeTable("rejects bad edits",
		func(edit func(*consultation.Lifecycle) error, code utils.Code) {
			ended()
			Expect(utils.IsCode(edit(lc), code)).To(BeTrue())
		},
		Entry("index past the end", func(l *consultation.Lifecycle) error {
			_, err := l.UpdateMedication(5, consultation.FieldName, "x")
			return err
		}, utils.CodeNotFound),
		Entry("negative index", func(l *consultation.Lifecycle) error {
			_, err := l.RemoveMedication(-1)
			return err
		}, utils.CodeNotFound),
		Entry("unknown field", func(l *consultation.Lifecycle) error {
			_, err := l.UpdateMedication(0, consultation.Field("route"), "oral")
			return err
		}, utils.CodeInvalidArgument),
	)

	It("validates once and then freezes the prescription", func() {
		ended()

		view, err := lc.ValidatePrescription()
		Expect(err).NotTo(HaveOccurred())
		Expect(view.Validated).To(BeTrue())
		Expect(view.ValidatedAt).NotTo(BeNil())
		Expect(*view.ValidatedAt).To(Equal(time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)))

		_, err = lc.ValidatePrescription()
		Expect(err).To(MatchError(consultation.ErrDraftValidated))
		_, err = lc.AddMedication()
		Expect(utils.IsCode(err, utils.CodeFailedPrecondition)).To(BeTrue())
		_, err = lc.UpdateMedication(0, consultation.FieldDosage, "2g")
		Expect(err).To(MatchError(consultation.ErrDraftValidated))

		Expect(lc.Status().Prescription.Validated).To(BeTrue())
	})

	It("refuses to validate a medication without a name", func() {
		ended()
		_, err := lc.AddMedication()
		Expect(err).NotTo(HaveOccurred())

		_, err = lc.ValidatePrescription()
		Expect(utils.IsCode(err, utils.CodeInvalidArgument)).To(BeTrue())

		view, err := lc.Prescription()
		Expect(err).NotTo(HaveOccurred())
		Expect(view.Validated).To(BeFalse())
	})
})
