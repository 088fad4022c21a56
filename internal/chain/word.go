package chain

import "math/big"

var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

// dateWord encodes signed unix seconds as a uint256 word. Negative values
// use the 256-bit two's complement.
func dateWord(unix int64) *big.Int {
	w := big.NewInt(unix)
	if w.Sign() < 0 {
		w.Add(w, twoTo256)
	}
	return w
}

// wordDate reverses dateWord.
func wordDate(w *big.Int) int64 {
	if w == nil {
		return 0
	}
	v := new(big.Int).Set(w)
	if v.Bit(255) == 1 {
		v.Sub(v, twoTo256)
	}
	return v.Int64()
}
