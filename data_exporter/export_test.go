package main

import (
	"bytes"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/xor-shift/rngserver/common"
	"github.com/xor-shift/rngserver/ingest"
)

var _ = Describe("Exporting draws", func() {
	insertTime := time.Unix(1700000000, 0)

	rows := []ingest.DrawRow{
		{Order: 0, FirstStep: 0, Distribution: common.DistU64, InsertTime: insertTime, Bits: 0xffffffffffffffff},
		{Order: 1, FirstStep: 1, Distribution: common.DistInt, InsertTime: insertTime, Int: -5},
		{Order: 2, FirstStep: 2, Distribution: common.DistDouble01, InsertTime: insertTime, Float: 0.25},
	}

	It("should expand the file name template", func() {
		name, err := outputFileName("session_{{.SessionNo}}.{{.Format}}", 12, "json")
		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(Equal("session_12.json"))

		_, err = outputFileName("session_{{.SessionNo", 12, "csv")
		Expect(err).To(HaveOccurred())
	})

	It("should write csv with and without titles", func() {
		buf := bytes.Buffer{}
		Expect(writeCSV(&buf, rows, true)).To(Succeed())
		Expect(buf.String()).To(Equal(
			"Draw Order,First Step,Distribution,Insert Time,Value\n" +
				"0,0,u64,1700000000,18446744073709551615\n" +
				"1,1,int,1700000000,-5\n" +
				"2,2,double01,1700000000,0.25\n"))

		buf.Reset()
		Expect(writeCSV(&buf, rows[1:2], false)).To(Succeed())
		Expect(buf.String()).To(Equal("1,1,int,1700000000,-5\n"))
	})

	It("should write json without losing 64-bit values", func() {
		buf := bytes.Buffer{}
		Expect(writeJSON(&buf, rows)).To(Succeed())

		var parsed []struct {
			Order uint64      `json:"order"`
			Dist  string      `json:"dist"`
			Value json.Number `json:"value"`
		}
		Expect(json.Unmarshal(buf.Bytes(), &parsed)).To(Succeed())
		Expect(parsed).To(HaveLen(3))
		Expect(parsed[0].Value.String()).To(Equal("18446744073709551615"))
		Expect(parsed[1].Dist).To(Equal("int"))
		Expect(parsed[2].Value.String()).To(Equal("0.25"))
	})
})
