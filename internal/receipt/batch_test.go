package receipt

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-hero/internal/scanning"
)

var _ = Describe("Processor", func() {
	var (
		extractor   *mockExtractor
		concurrency int
		images      []SourceImage
		receipts    []Receipt
		failures    []Failure
	)

	BeforeEach(func() {
		extractor = newMockExtractor()
		concurrency = 0
		images = []SourceImage{
			{Name: "one.jpg", Base64: "b25l", MIMEType: "image/jpeg"},
			{Name: "two.png", Base64: "dHdv", MIMEType: "image/png"},
			{Name: "three.jpg", Base64: "dGhyZWU=", MIMEType: "image/jpeg"},
		}
		extractor.results["b25l"] = []scanning.RawReceipt{
			rawReceipt("Costco", "groceries", 120.50),
			rawReceipt("Costco Gas", "gas", 45.10),
		}
		extractor.results["dHdv"] = []scanning.RawReceipt{rawReceipt("Best Buy", "electronics", 199.99)}
		extractor.results["dGhyZWU="] = []scanning.RawReceipt{rawReceipt("Gap", "clothing", 35)}
	})

	JustBeforeEach(func() {
		processor := NewProcessorWithDeps(extractor, &sequenceIDGenerator{}, concurrency)
		receipts, failures = processor.ProcessBatch(context.Background(), images)
	})

	When("every image succeeds", func() {
		It("should call the extractor once per image", func() {
			Expect(extractor.calls).To(ConsistOf("b25l", "dHdv", "dGhyZWU="))
		})

		It("should group receipts by image in input order", func() {
			vendors := []string{}
			for _, r := range receipts {
				vendors = append(vendors, r.Vendor)
			}
			Expect(vendors).To(Equal([]string{"Costco", "Costco Gas", "Best Buy", "Gap"}))
		})

		It("should normalize each receipt against its own source image", func() {
			Expect(receipts[0].FileName).To(Equal("one.jpg"))
			Expect(receipts[1].Base64).To(Equal("b25l"))
			Expect(receipts[2].MIMEType).To(Equal("image/png"))
			Expect(receipts[3].Thumbnail).To(Equal("data:image/jpeg;base64,dGhyZWU="))
		})

		It("should give every receipt a distinct ID", func() {
			ids := map[string]bool{}
			for _, r := range receipts {
				ids[r.ID] = true
			}
			Expect(ids).To(HaveLen(4))
		})

		It("should report no failures", func() {
			Expect(failures).To(BeEmpty())
		})
	})

	When("image 2 fails transport", func() {
		BeforeEach(func() {
			extractor.errs["dHdv"] = fmt.Errorf("%w: timeout", scanning.ErrTransport)
		})

		It("should return receipts from images 1 and 3 only", func() {
			Expect(receipts).To(HaveLen(3))
			for _, r := range receipts {
				Expect(r.FileName).NotTo(Equal("two.png"))
			}
		})

		It("should report the failure separately", func() {
			Expect(failures).To(HaveLen(1))
			Expect(failures[0].Index).To(Equal(1))
			Expect(failures[0].FileName).To(Equal("two.png"))
			Expect(failures[0].Message).To(ContainSubstring("timeout"))
			Expect(errors.Is(failures[0].Err, scanning.ErrTransport)).To(BeTrue())
		})
	})

	When("the oracle returns non-JSON for one image", func() {
		BeforeEach(func() {
			extractor.errs["b25l"] = scanning.ErrMalformedJSON
		})

		It("should contribute nothing for that image", func() {
			Expect(receipts).To(HaveLen(2))
			Expect(receipts[0].Vendor).To(Equal("Best Buy"))
		})

		It("should record the failure", func() {
			Expect(failures).To(HaveLen(1))
			Expect(failures[0].Err).To(MatchError(scanning.ErrMalformedJSON))
		})
	})

	When("every image fails", func() {
		BeforeEach(func() {
			for _, img := range images {
				extractor.errs[img.Base64] = scanning.ErrEmptyResponse
			}
		})

		It("should return an empty, non-nil receipt list", func() {
			Expect(receipts).NotTo(BeNil())
			Expect(receipts).To(BeEmpty())
		})

		It("should report every image", func() {
			Expect(failures).To(HaveLen(3))
		})
	})

	When("an image yields no receipts", func() {
		BeforeEach(func() {
			extractor.results["dHdv"] = []scanning.RawReceipt{}
		})

		It("should not count it as a failure", func() {
			Expect(failures).To(BeEmpty())
			Expect(receipts).To(HaveLen(3))
		})
	})

	When("the batch is empty", func() {
		BeforeEach(func() {
			images = nil
		})

		It("should return nothing", func() {
			Expect(receipts).To(BeEmpty())
			Expect(failures).To(BeEmpty())
		})
	})
})

var _ = Describe("Processor concurrency", func() {
	var (
		extractor *mockExtractor
		images    []SourceImage
		done      chan struct{}
	)

	BeforeEach(func() {
		extractor = newMockExtractor()
		extractor.release = make(chan struct{})
		done = make(chan struct{})
		images = []SourceImage{
			{Name: "one.jpg", Base64: "b25l", MIMEType: "image/jpeg"},
			{Name: "two.jpg", Base64: "dHdv", MIMEType: "image/jpeg"},
			{Name: "three.jpg", Base64: "dGhyZWU=", MIMEType: "image/jpeg"},
		}
	})

	run := func(concurrency int) {
		processor := NewProcessorWithDeps(extractor, &sequenceIDGenerator{}, concurrency)
		go func() {
			defer GinkgoRecover()
			defer close(done)
			processor.ProcessBatch(context.Background(), images)
		}()
	}

	When("unlimited", func() {
		It("should run every extraction at once", func() {
			run(0)
			Eventually(extractor.inFlightNow).Should(Equal(int32(3)))
			close(extractor.release)
			Eventually(done).Should(BeClosed())
		})
	})

	When("limited", func() {
		It("should never exceed the limit", func() {
			run(1)
			Eventually(extractor.inFlightNow).Should(Equal(int32(1)))
			Consistently(extractor.inFlightNow, "50ms").Should(BeNumerically("<=", 1))
			close(extractor.release)
			Eventually(done).Should(BeClosed())
			Expect(extractor.maxInFlight()).To(Equal(int32(1)))
			Expect(extractor.calls).To(HaveLen(3))
		})
	})
})
