package parts

import "github.com/annel0/mmo-multipart/internal/multipart"

func init() {
	placeable := multipart.KindOptions{Placeable: true}
	multipart.RegisterKind(CoverKind, func() multipart.Part { return &Cover{material: "stone"} }, placeable)
	multipart.RegisterKind(SlabKind, func() multipart.Part { return &Slab{material: "stone"} }, placeable)
	multipart.RegisterKind(ConduitKind, func() multipart.Part { return &Conduit{} }, placeable)
	multipart.RegisterKind(PortKind, func() multipart.Part { return &Port{} }, placeable)
}
