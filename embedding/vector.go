package embedding

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

type EmbeddingVector []float32

func (ev EmbeddingVector) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	err := binary.Write(&buf, binary.LittleEndian, ev)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (ev *EmbeddingVector) UnmarshalBinary(data []byte) error {
	if len(data)%4 != 0 {
		return errors.New("data length is not a multiple of 4")
	}
	numElements := len(data) / 4

	*ev = make(EmbeddingVector, numElements)

	buf := bytes.NewBuffer(data)
	err := binary.Read(buf, binary.LittleEndian, ev)
	if err != nil {
		return err
	}
	return nil
}

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Mismatched dimensions or a zero vector yield 0.
func CosineSimilarity(a, b EmbeddingVector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineDistance is 1 - CosineSimilarity, the distance metric used for
// density clustering.
func CosineDistance(a, b EmbeddingVector) float64 {
	return 1 - CosineSimilarity(a, b)
}
