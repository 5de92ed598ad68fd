package receipt

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/google/uuid"

	"github.com/zombor/receipt-hero/internal/scanning"
)

var _ = Describe("Normalize", func() {
	var (
		raw    scanning.RawReceipt
		src    SourceImage
		idGen  *sequenceIDGenerator
		result Receipt
	)

	BeforeEach(func() {
		raw = scanning.RawReceipt{
			Date:          "2024-01-15",
			Vendor:        "Walgreens",
			Category:      "healthcare",
			PaymentMethod: "gift card",
			TaxAmount:     0.82,
			Amount:        12.49,
		}
		src = SourceImage{Name: "IMG_0042.jpg", Base64: "c291cmNl", MIMEType: "image/jpeg"}
		idGen = &sequenceIDGenerator{}
	})

	JustBeforeEach(func() {
		result = Normalize(raw, src, idGen)
	})

	When("optional fields are missing", func() {
		It("should assign a fresh ID", func() {
			Expect(result.ID).To(Equal("id-1"))
		})

		It("should assign a new ID on every call", func() {
			second := Normalize(raw, src, idGen)
			Expect(second.ID).To(Equal("id-2"))
			Expect(second.ID).NotTo(Equal(result.ID))
		})

		It("should default the file name to the source name", func() {
			Expect(result.FileName).To(Equal("IMG_0042.jpg"))
		})

		It("should build the thumbnail from the source image", func() {
			Expect(result.Thumbnail).To(Equal("data:image/jpeg;base64,c291cmNl"))
		})
	})

	When("the oracle supplies optional fields", func() {
		BeforeEach(func() {
			raw.FileName = "receipt-2.jpg"
			raw.Thumbnail = "https://example.com/thumb.png"
		})

		It("should keep them", func() {
			Expect(result.FileName).To(Equal("receipt-2.jpg"))
			Expect(result.Thumbnail).To(Equal("https://example.com/thumb.png"))
		})

		It("should still assign a fresh ID", func() {
			Expect(result.ID).To(Equal("id-1"))
		})
	})

	It("should always store the submitted image", func() {
		Expect(result.Base64).To(Equal("c291cmNl"))
		Expect(result.MIMEType).To(Equal("image/jpeg"))
	})

	It("should pass category and payment method through verbatim", func() {
		Expect(result.Category).To(Equal("healthcare"))
		Expect(result.PaymentMethod).To(Equal("gift card"))
	})

	It("should copy the amounts", func() {
		Expect(result.Amount).To(Equal(12.49))
		Expect(result.TaxAmount).To(Equal(0.82))
	})

	When("the date is not a date", func() {
		BeforeEach(func() {
			raw.Date = "yesterday-ish"
		})

		It("should store it as-is", func() {
			Expect(result.Date).To(Equal("yesterday-ish"))
		})
	})
})

var _ = Describe("NewUUIDGenerator", func() {
	It("should generate distinct UUIDs", func() {
		gen := NewUUIDGenerator()
		a, b := gen.Generate(), gen.Generate()
		Expect(a).NotTo(Equal(b))
		_, err := uuid.Parse(a)
		Expect(err).NotTo(HaveOccurred())
	})
})
