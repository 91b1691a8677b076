// Package browser turns discovery results into a server browser model.
//
// A ServerList is a discovery.Observer that keeps one entry per server ID,
// merging the endpoints of servers reachable on several interfaces. A Store
// keeps recently seen servers across restarts in a bbolt file.
//
//	list := browser.NewServerList()
//	store, err := browser.OpenStore("servers.db")
//	if err == nil {
//	    list.AttachStore(store)
//	    defer store.Close()
//	}
//	l := discovery.NewListener(list, discovery.DefaultOptions())
//	defer l.Close()
//
//	for range time.Tick(5 * time.Second) {
//	    list.Prune(30 * time.Second)
//	    for _, s := range list.List() {
//	        fmt.Println(s.Name, s.EndPoint())
//	    }
//	}
package browser
