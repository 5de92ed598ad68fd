package receipt

import (
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Store", func() {
	var (
		kv    *mockKV
		store *Store
	)

	BeforeEach(func() {
		kv = newMockKV()
		store = NewStore(kv)
	})

	persisted := func() Snapshot {
		GinkgoHelper()
		data, ok := kv.values[SnapshotKey]
		Expect(ok).To(BeTrue(), "snapshot was not written")
		var snap Snapshot
		Expect(json.Unmarshal(data, &snap)).To(Succeed())
		return snap
	}

	Describe("Initialize", func() {
		JustBeforeEach(func() {
			store.Initialize()
		})

		When("nothing is stored", func() {
			It("should start empty", func() {
				state := store.State()
				Expect(state.Receipts).To(BeEmpty())
				Expect(state.Breakdown).To(BeNil())
			})
		})

		When("the snapshot is malformed", func() {
			BeforeEach(func() {
				kv.values[SnapshotKey] = []byte("{not json")
			})

			It("should start empty", func() {
				Expect(store.State().Receipts).To(BeEmpty())
			})
		})

		When("reading the snapshot fails", func() {
			BeforeEach(func() {
				kv.getErr = errors.New("io error")
			})

			It("should start empty", func() {
				Expect(store.State().Receipts).To(BeEmpty())
			})
		})

		When("a snapshot exists", func() {
			BeforeEach(func() {
				snap := Snapshot{
					Receipts: []Receipt{
						{ID: "r1", Vendor: "Shell", Category: "gas", Amount: 40},
						{ID: "r2", Vendor: "Publix", Category: "groceries", Amount: 60, Base64: "own", MIMEType: "image/png"},
					},
					// A stale breakdown should be ignored
					Breakdown: &Breakdown{TotalSpending: 999, TotalReceipts: 9},
					Base64s:   []string{"c2hlbGw=", "other"},
					MIMETypes: []string{"image/jpeg", "image/jpeg"},
				}
				data, err := json.Marshal(snap)
				Expect(err).NotTo(HaveOccurred())
				kv.values[SnapshotKey] = data
			})

			It("should load the receipts", func() {
				Expect(store.State().Receipts).To(HaveLen(2))
			})

			It("should restore missing images from the parallel arrays", func() {
				r, ok := store.Receipt("r1")
				Expect(ok).To(BeTrue())
				Expect(r.Base64).To(Equal("c2hlbGw="))
				Expect(r.MIMEType).To(Equal("image/jpeg"))
			})

			It("should keep images the receipt already carries", func() {
				r, _ := store.Receipt("r2")
				Expect(r.Base64).To(Equal("own"))
				Expect(r.MIMEType).To(Equal("image/png"))
			})

			It("should recompute the breakdown", func() {
				b := store.State().Breakdown
				Expect(b).NotTo(BeNil())
				Expect(*b).To(Equal(Aggregate(store.State().Receipts)))
				Expect(b.TotalSpending).To(Equal(100.0))
			})
		})
	})

	Describe("AddReceipts", func() {
		It("should persist the receipts with their images and breakdown", func() {
			state, err := store.AddReceipts([]Receipt{
				{ID: "r1", Category: "dining", Amount: 12.5, Base64: "aaaa", MIMEType: "image/jpeg"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Receipts).To(HaveLen(1))

			snap := persisted()
			Expect(snap.Receipts).To(Equal(state.Receipts))
			Expect(snap.Base64s).To(Equal([]string{"aaaa"}))
			Expect(snap.MIMETypes).To(Equal([]string{"image/jpeg"}))
			Expect(snap.Breakdown).To(Equal(state.Breakdown))
		})

		It("should keep the breakdown equal to the aggregate of the receipts", func() {
			_, err := store.AddReceipts([]Receipt{{ID: "r1", Category: "dining", Amount: 10}})
			Expect(err).NotTo(HaveOccurred())
			state, err := store.AddReceipts([]Receipt{{ID: "r2", Category: "gas", Amount: 30}})
			Expect(err).NotTo(HaveOccurred())

			Expect(*state.Breakdown).To(Equal(Aggregate(state.Receipts)))
			Expect(state.Breakdown.Categories[0].Name).To(Equal("gas"))
		})

		When("persisting fails", func() {
			BeforeEach(func() {
				_, err := store.AddReceipts([]Receipt{{ID: "r1", Category: "dining", Amount: 10}})
				Expect(err).NotTo(HaveOccurred())
				kv.putErr = errors.New("disk full")
			})

			It("returns the error and leaves the state unchanged", func() {
				state, err := store.AddReceipts([]Receipt{{ID: "r2", Category: "gas", Amount: 30}})
				Expect(err).To(MatchError(ContainSubstring("disk full")))
				Expect(state.Receipts).To(HaveLen(1))
				Expect(state.Breakdown.TotalSpending).To(Equal(10.0))
			})
		})
	})

	Describe("DeleteReceipt", func() {
		BeforeEach(func() {
			_, err := store.AddReceipts([]Receipt{
				{ID: "r1", Category: "dining", Amount: 10},
				{ID: "r2", Category: "gas", Amount: 30},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should remove the receipt and update the breakdown", func() {
			state, err := store.DeleteReceipt("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Receipts).To(HaveLen(1))
			Expect(state.Breakdown.TotalReceipts).To(Equal(1))
			Expect(state.Breakdown.Categories).To(Equal([]SpendingCategory{{Name: "gas", Amount: 30, Percentage: 100}}))
			Expect(persisted().Receipts).To(HaveLen(1))
		})

		It("should ignore unknown IDs without writing", func() {
			before := kv.puts
			state, err := store.DeleteReceipt("missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Receipts).To(HaveLen(2))
			Expect(kv.puts).To(Equal(before))
		})

		When("the last receipt is deleted", func() {
			It("should clear the breakdown and persist an empty snapshot", func() {
				_, err := store.DeleteReceipt("r1")
				Expect(err).NotTo(HaveOccurred())
				state, err := store.DeleteReceipt("r2")
				Expect(err).NotTo(HaveOccurred())

				Expect(state.Receipts).To(BeEmpty())
				Expect(state.Breakdown).To(BeNil())

				snap := persisted()
				Expect(snap.Receipts).NotTo(BeNil())
				Expect(snap.Receipts).To(BeEmpty())
				Expect(snap.Breakdown).To(BeNil())
			})
		})
	})

	Describe("Clear", func() {
		BeforeEach(func() {
			_, err := store.AddReceipts([]Receipt{{ID: "r1", Category: "dining", Amount: 10}})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should remove the snapshot and empty the store", func() {
			Expect(store.Clear()).To(Succeed())
			Expect(kv.values).NotTo(HaveKey(SnapshotKey))
			Expect(store.State().Receipts).To(BeEmpty())
			Expect(store.State().Breakdown).To(BeNil())
		})

		It("should start empty on the next load", func() {
			Expect(store.Clear()).To(Succeed())
			reloaded := NewStore(kv)
			reloaded.Initialize()
			Expect(reloaded.State().Receipts).To(BeEmpty())
		})
	})

	Describe("State", func() {
		It("should return a copy", func() {
			_, err := store.AddReceipts([]Receipt{{ID: "r1", Vendor: "Shell", Category: "gas", Amount: 10}})
			Expect(err).NotTo(HaveOccurred())

			state := store.State()
			state.Receipts[0].Vendor = "changed"
			state.Breakdown.Categories[0].Name = "changed"

			r, _ := store.Receipt("r1")
			Expect(r.Vendor).To(Equal("Shell"))
			Expect(store.State().Breakdown.Categories[0].Name).To(Equal("gas"))
		})
	})

	It("should round-trip through a reload", func() {
		_, err := store.AddReceipts([]Receipt{
			{ID: "r1", Vendor: "Shell", Category: "gas", Amount: 40, Base64: "c2hlbGw=", MIMEType: "image/jpeg"},
			{ID: "r2", Vendor: "Publix", Category: "groceries", Amount: 60, Base64: "cHVibGl4", MIMEType: "image/png"},
		})
		Expect(err).NotTo(HaveOccurred())

		reloaded := NewStore(kv)
		reloaded.Initialize()
		Expect(reloaded.State()).To(Equal(store.State()))
	})
})
