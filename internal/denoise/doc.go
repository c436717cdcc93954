// Package denoise runs canonical audio through RNNoise.
//
// The native library is loaded once per process with LoadRNNoise and shared
// by every Session. A Session owns one recurrent denoiser state: it segments
// a payload into 10 ms frames, denoises each one in order, drops frames whose
// voice score is below the requested threshold and joins the rest back
// together, optionally at the input's original sample rate.
//
// The state a Session carries between calls is what makes consecutive chunks
// of one stream sound continuous. Reset it (or use a new Session) before
// starting an unrelated stream.
package denoise
