// Package codec implements the byte-level compression techniques used by
// klondike archives.
//
// Every technique implements the same [Codec] contract and is identified by a
// stable [Technique] id that is written to disk as the first byte of a stored
// blob:
//
//	0 raw       identity
//	1 deflate   LZ77+Huffman (klauspost/compress/flate), level from size and entropy
//	2 lz77      hash-chain LZ77 with 253/254/255 marker tokens
//	3 bwt       Burrows-Wheeler + move-to-front + run-length + Huffman
//	4 context   order-N next-byte predictor with hit-run tokens + Huffman
//	5 huffman   canonical Huffman with codebook and bit-length trailer
//	6 zstd      klauspost/compress/zstd
//	7 lz4       pierrec/lz4 block with a uvarint size prefix
//	8 xz        ulikunitz/xz (LZMA2)
//
// Id 0x4B ('K') is reserved for the chunk wrapper in package engine.
package codec
