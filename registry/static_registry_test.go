package registry

import "testing"

func TestStaticRegistryFallback(t *testing.T) {
	reg := NewStaticRegistry("127.0.0.1:7070", "127.0.0.1:7071")

	list, err := reg.Discover("any.IService")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Addr != "127.0.0.1:7070" || list[0].Weight != 1 {
		t.Fatalf("unexpected instances %+v", list)
	}
}

func TestStaticRegistryRegisterDeregister(t *testing.T) {
	reg := NewStaticRegistry()
	const svc = "test.IStatic"

	if err := reg.Register(svc, ServiceInstance{Addr: "a:1", Weight: 3}, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(svc, ServiceInstance{Addr: "a:1", Weight: 7}, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(svc, ServiceInstance{}, 10); err == nil {
		t.Fatal("expect error for empty address")
	}

	list, _ := reg.Discover(svc)
	if len(list) != 1 || list[0].Weight != 7 {
		t.Fatalf("re-register should replace, got %+v", list)
	}
	if other, _ := reg.Discover("other.IService"); len(other) != 0 {
		t.Fatalf("registration leaked to another descriptor: %+v", other)
	}

	reg.Deregister(svc, "a:1")
	if list, _ := reg.Discover(svc); len(list) != 0 {
		t.Fatalf("expect empty after deregister, got %+v", list)
	}
}

func TestStaticRegistryWatch(t *testing.T) {
	reg := NewStaticRegistry()
	const svc = "test.IStaticWatch"

	ch := reg.Watch(svc)
	if first := <-ch; len(first) != 0 {
		t.Fatalf("expect empty initial list, got %+v", first)
	}

	reg.Register(svc, ServiceInstance{Addr: "a:1"}, 10)
	reg.Register(svc, ServiceInstance{Addr: "a:2"}, 10)

	// only the latest list is retained
	if latest := <-ch; len(latest) != 2 {
		t.Fatalf("expect 2 instances, got %+v", latest)
	}
}
