package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/convprobe/internal/parallel"
	"github.com/born-ml/convprobe/internal/tensor"
)

// conv3dGeometry holds the sizes shared by the forward and backward kernels.
type conv3dGeometry struct {
	N, C, D, H, W    int // input
	COut, KD, KH, KW int // weight
	DO, HO, WO       int // output
	Groups           int
	CinG, CoutG      int
	K                int // rows of the column matrix: CinG*KD*KH*KW
	L                int // columns of the column matrix: DO*HO*WO
	cfg              tensor.Conv3DConfig
}

func newConv3DGeometry(op string, input, weight *tensor.RawTensor, cfg tensor.Conv3DConfig) conv3dGeometry {
	cfg = cfg.Normalize()
	outShape, err := cfg.OutputShape(input.Shape(), weight.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	if input.DType() != weight.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch: input %s, weight %s", op, input.DType(), weight.DType()))
	}

	in, w := input.Shape(), weight.Shape()
	g := conv3dGeometry{
		N: in[0], C: in[1], D: in[2], H: in[3], W: in[4],
		COut: w[0], KD: w[2], KH: w[3], KW: w[4],
		DO: outShape[2], HO: outShape[3], WO: outShape[4],
		Groups: cfg.Groups,
		cfg:    cfg,
	}
	g.CinG, g.CoutG = cfg.GroupChannels(g.C, g.COut)
	g.K = g.CinG * g.KD * g.KH * g.KW
	g.L = g.DO * g.HO * g.WO
	return g
}

func (g conv3dGeometry) outputShape() tensor.Shape {
	return tensor.Shape{g.N, g.COut, g.DO, g.HO, g.WO}
}

// inputSlab is the range of one (batch, group) input block.
func (g conv3dGeometry) inputSlab(n, grp int) (from, to int) {
	vol := g.D * g.H * g.W
	from = (n*g.C + grp*g.CinG) * vol
	return from, from + g.CinG*vol
}

// outputSlab is the range of one (batch, group) output block, CoutG x L.
func (g conv3dGeometry) outputSlab(n, grp int) (from, to int) {
	from = (n*g.COut + grp*g.CoutG) * g.L
	return from, from + g.CoutG*g.L
}

// weightSlab is the range of one group's weight rows, CoutG x K.
func (g conv3dGeometry) weightSlab(grp int) (from, to int) {
	from = grp * g.CoutG * g.K
	return from, from + g.CoutG*g.K
}

// Conv3D performs grouped 3-D convolution using vol2col and GEMM.
//
// Input shape:  [N, C_in, D, H, W]
// Weight shape: [C_out, C_in/groups, kD, kH, kW]
// Bias shape:   [C_out] (optional, may be nil)
// Output shape: [N, C_out, D_out, H_out, W_out]
//
// Algorithm, for every (batch n, group g):
//  1. vol2col: unfold the group's C_in/groups input channels into a
//     column matrix [K, L] with K = C_in/groups*kD*kH*kW and L = D_out*H_out*W_out
//  2. GEMM: out[n, g*C_out/groups : (g+1)*C_out/groups] = W_g [C_out/groups, K] @ col [K, L]
//  3. Add bias per output channel
//
// (batch, group) pairs write disjoint output blocks and run in parallel.
func (cpu *CPUBackend) Conv3D(input, weight, bias *tensor.RawTensor, cfg tensor.Conv3DConfig) *tensor.RawTensor {
	geo := newConv3DGeometry("conv3d", input, weight, cfg)
	if bias != nil {
		if len(bias.Shape()) != 1 || bias.Shape()[0] != geo.COut {
			panic(fmt.Sprintf("conv3d: bias shape %v, want [%d]", bias.Shape(), geo.COut))
		}
		if bias.DType() != input.DType() {
			panic(fmt.Sprintf("conv3d: bias dtype %s, want %s", bias.DType(), input.DType()))
		}
	}

	output, err := tensor.NewRaw(geo.outputShape(), input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv3d: failed to create output tensor: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		conv3dForward[float32](output, input, weight, bias, geo, cpu.parallel)
	case tensor.Float64:
		conv3dForward[float64](output, input, weight, bias, geo, cpu.parallel)
	default:
		panic(fmt.Sprintf("conv3d: unsupported dtype %s", input.DType()))
	}

	return output
}

func conv3dForward[T tensor.DType](output, input, weight, bias *tensor.RawTensor, geo conv3dGeometry, pcfg parallel.Config) {
	in := tensor.Elements[T](input)
	w := tensor.Elements[T](weight)
	out := tensor.Elements[T](output)
	var b []T
	if bias != nil {
		b = tensor.Elements[T](bias)
	}

	parallel.ForBatch(geo.N, geo.Groups, func(n, grp int) {
		col := make([]T, geo.K*geo.L)
		inFrom, inTo := geo.inputSlab(n, grp)
		vol2col(col, in[inFrom:inTo], geo)

		wFrom, wTo := geo.weightSlab(grp)
		outFrom, outTo := geo.outputSlab(n, grp)
		outNG := out[outFrom:outTo]
		gemm(blas.NoTrans, blas.NoTrans,
			geo.CoutG, geo.K, w[wFrom:wTo],
			geo.K, geo.L, col,
			0, geo.CoutG, geo.L, outNG)

		if b != nil {
			for oc := range geo.CoutG {
				bv := b[grp*geo.CoutG+oc]
				row := outNG[oc*geo.L : (oc+1)*geo.L]
				for i := range row {
					row[i] += bv
				}
			}
		}
	}, pcfg)
}

// vol2col unfolds one (batch, group) block of shape [CinG, D, H, W] into
// col [K, L]. Row index is ((c*KD+kd)*KH+kh)*KW+kw, matching the row-major
// layout of a weight slice [CoutG, CinG, KD, KH, KW]. Padded taps are zero.
func vol2col[T tensor.DType](col, in []T, geo conv3dGeometry) {
	forEachTap(geo, func(row, l, src int) {
		if src < 0 {
			col[row*geo.L+l] = 0
			return
		}
		col[row*geo.L+l] = in[src]
	})
}

// col2vol is the adjoint of vol2col: it scatter-adds col [K, L] back into a
// [CinG, D, H, W] block.
func col2vol[T tensor.DType](dst, col []T, geo conv3dGeometry) {
	forEachTap(geo, func(row, l, src int) {
		if src >= 0 {
			dst[src] += col[row*geo.L+l]
		}
	})
}

// forEachTap visits every (column row, output position) pair of one
// (batch, group) block and reports the flat input offset it reads, or -1
// when the tap falls in the zero padding.
func forEachTap(geo conv3dGeometry, visit func(row, l, src int)) {
	cfg := geo.cfg
	vol := geo.D * geo.H * geo.W
	for c := range geo.CinG {
		for kd := range geo.KD {
			for kh := range geo.KH {
				for kw := range geo.KW {
					row := ((c*geo.KD+kd)*geo.KH+kh)*geo.KW + kw
					for od := range geo.DO {
						id := od*cfg.Stride[0] - cfg.Padding[0] + kd*cfg.Dilation[0]
						for oh := range geo.HO {
							ih := oh*cfg.Stride[1] - cfg.Padding[1] + kh*cfg.Dilation[1]
							for ow := range geo.WO {
								iw := ow*cfg.Stride[2] - cfg.Padding[2] + kw*cfg.Dilation[2]
								l := (od*geo.HO+oh)*geo.WO + ow
								if id < 0 || id >= geo.D || ih < 0 || ih >= geo.H || iw < 0 || iw >= geo.W {
									visit(row, l, -1)
									continue
								}
								visit(row, l, c*vol+(id*geo.H+ih)*geo.W+iw)
							}
						}
					}
				}
			}
		}
	}
}

// gemm computes c = op(a) @ op(b) + beta*c with gonum BLAS. Each matrix is
// given by its stored (untransposed) rows and columns and is contiguous.
func gemm[T tensor.DType](tA, tB blas.Transpose,
	aRows, aCols int, a []T,
	bRows, bCols int, b []T,
	beta T, cRows, cCols int, c []T,
) {
	switch av := any(a).(type) {
	case []float32:
		blas32.Gemm(tA, tB, 1,
			blas32.General{Rows: aRows, Cols: aCols, Stride: aCols, Data: av},
			blas32.General{Rows: bRows, Cols: bCols, Stride: bCols, Data: any(b).([]float32)},
			float32(beta),
			blas32.General{Rows: cRows, Cols: cCols, Stride: cCols, Data: any(c).([]float32)})
	case []float64:
		blas64.Gemm(tA, tB, 1,
			blas64.General{Rows: aRows, Cols: aCols, Stride: aCols, Data: av},
			blas64.General{Rows: bRows, Cols: bCols, Stride: bCols, Data: any(b).([]float64)},
			float64(beta),
			blas64.General{Rows: cRows, Cols: cCols, Stride: cCols, Data: any(c).([]float64)})
	default:
		panic(fmt.Sprintf("gemm: unsupported element type %T", a))
	}
}
